// Package roster is the durable registry of agents in a workspace.
//
// The roster is one JSON document, .muster/roster.json, rewritten
// atomically on every change. Mutations take a file lock first so
// concurrent CLI invocations and the watchdog serialize their
// read-modify-write cycles; within the lock the semantics are plain last
// write wins. Readers skip the lock and rely on the atomic rename.
package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/steveyegge/muster/internal/util"
	"github.com/steveyegge/muster/internal/workspace"
)

var (
	// ErrAgentNotFound means the named agent is not registered.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrDuplicateAgent means the name is already registered.
	ErrDuplicateAgent = errors.New("agent name already registered")
	// ErrInvalidTransition means the requested status change or removal
	// breaks the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNotIdle means Close was called on an agent that is Working or
	// Stalled; those leave the roster only through recovery.
	ErrNotIdle = errors.New("agent is not idle")
)

// Agent is one roster entry.
type Agent struct {
	Name         string    `json:"name"`
	SessionID    string    `json:"sessionId"`
	Status       Status    `json:"status"`
	LastActivity time.Time `json:"lastActivity"`
	CurrentTask  string    `json:"currentTask"`
}

// document is the persisted shape of roster.json.
type document struct {
	Agents []Agent `json:"agents"`
}

// Roster reads and mutates the agent registry for one workspace.
type Roster struct {
	path string
	fl   *flock.Flock
}

// New returns a Roster for the workspace rooted at root.
func New(root string) *Roster {
	state := workspace.StateDir(root)
	return &Roster{
		path: filepath.Join(state, "roster.json"),
		fl:   flock.New(filepath.Join(state, "roster.lock")),
	}
}

// Create registers a new agent in the Idle state.
func (r *Roster) Create(name, sessionID string) (*Agent, error) {
	return r.CreateWithTask(name, sessionID, "")
}

// CreateWithTask registers a new agent with an initial task description.
func (r *Roster) CreateWithTask(name, sessionID, task string) (*Agent, error) {
	if name == "" {
		return nil, errors.New("agent name must not be empty")
	}
	if sessionID == "" {
		return nil, errors.New("session id must not be empty")
	}

	var created Agent
	err := r.withLock(func(doc *document) error {
		if _, ok := findAgent(doc, name); ok {
			return fmt.Errorf("%w: %s", ErrDuplicateAgent, name)
		}
		created = Agent{
			Name:         name,
			SessionID:    sessionID,
			Status:       StatusIdle,
			LastActivity: now(),
			CurrentTask:  task,
		}
		doc.Agents = append(doc.Agents, created)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateStatus moves an agent through the state machine. Every accepted
// update refreshes lastActivity, self-transitions included, so a repeated
// "working" update doubles as a liveness signal.
func (r *Roster) UpdateStatus(name string, to Status) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %d", ErrInvalidTransition, int(to))
	}
	return r.withLock(func(doc *document) error {
		i, ok := findAgent(doc, name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
		}
		from := doc.Agents[i].Status
		if !validTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, from, to, name)
		}
		doc.Agents[i].Status = to
		doc.Agents[i].LastActivity = now()
		return nil
	})
}

// Touch refreshes an agent's lastActivity without changing status. The
// watchdog calls this whenever it observes fresh terminal output.
func (r *Roster) Touch(name string) error {
	return r.withLock(func(doc *document) error {
		i, ok := findAgent(doc, name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
		}
		doc.Agents[i].LastActivity = now()
		return nil
	})
}

// SetTask updates an agent's task description and refreshes activity.
func (r *Roster) SetTask(name, task string) error {
	return r.withLock(func(doc *document) error {
		i, ok := findAgent(doc, name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrAgentNotFound, name)
		}
		doc.Agents[i].CurrentTask = task
		doc.Agents[i].LastActivity = now()
		return nil
	})
}

// Remove deregisters an agent on the recovery path. Only Working or
// Stalled agents can be removed this way; an Idle agent must go through
// Close. Removing an absent agent returns (false, nil) so repeated
// recovery attempts stay idempotent.
func (r *Roster) Remove(name string) (bool, error) {
	removed := false
	err := r.withLock(func(doc *document) error {
		i, ok := findAgent(doc, name)
		if !ok {
			return nil
		}
		if doc.Agents[i].Status == StatusIdle {
			return fmt.Errorf("%w: cannot remove idle agent %s (use close)", ErrInvalidTransition, name)
		}
		doc.Agents = append(doc.Agents[:i], doc.Agents[i+1:]...)
		removed = true
		return nil
	})
	return removed, err
}

// Close deregisters an Idle agent at the operator's request. Closing an
// absent agent returns (false, nil).
func (r *Roster) Close(name string) (bool, error) {
	closed := false
	err := r.withLock(func(doc *document) error {
		i, ok := findAgent(doc, name)
		if !ok {
			return nil
		}
		if doc.Agents[i].Status != StatusIdle {
			return fmt.Errorf("%w: %s is %s", ErrNotIdle, name, doc.Agents[i].Status)
		}
		doc.Agents = append(doc.Agents[:i], doc.Agents[i+1:]...)
		closed = true
		return nil
	})
	return closed, err
}

// Find returns the named agent or ErrAgentNotFound.
func (r *Roster) Find(name string) (*Agent, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	if i, ok := findAgent(doc, name); ok {
		a := doc.Agents[i]
		return &a, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
}

// List returns every agent sorted by name.
func (r *Roster) List() ([]Agent, error) {
	doc, err := r.load()
	if err != nil {
		return nil, err
	}
	agents := append([]Agent(nil), doc.Agents...)
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}

// ListByStatus returns agents currently in the given state, sorted by
// name.
func (r *Roster) ListByStatus(s Status) ([]Agent, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, a := range all {
		if a.Status == s {
			out = append(out, a)
		}
	}
	return out, nil
}

// withLock serializes a read-modify-write of the roster document against
// other processes.
func (r *Roster) withLock(fn func(*document) error) error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := r.fl.Lock(); err != nil {
		return fmt.Errorf("locking roster: %w", err)
	}
	defer r.fl.Unlock()

	doc, err := r.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return r.save(doc)
}

func (r *Roster) load() (*document, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &document{}, nil
		}
		return nil, fmt.Errorf("reading roster: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing roster: %w", err)
	}
	return &doc, nil
}

func (r *Roster) save(doc *document) error {
	if doc.Agents == nil {
		doc.Agents = []Agent{}
	}
	for i := range doc.Agents {
		doc.Agents[i].LastActivity = doc.Agents[i].LastActivity.UTC().Truncate(time.Second)
	}
	if err := util.AtomicWriteJSON(r.path, doc); err != nil {
		return fmt.Errorf("writing roster: %w", err)
	}
	return nil
}

func findAgent(doc *document, name string) (int, bool) {
	for i := range doc.Agents {
		if doc.Agents[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
