package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/muster/internal/journal"
	"github.com/steveyegge/muster/internal/roster"
	"github.com/steveyegge/muster/internal/ui"
)

var (
	agentCreateTask string
	agentListStatus string
)

var agentCmd = &cobra.Command{
	Use:     "agent",
	GroupID: GroupAgents,
	Short:   "Manage the agent roster",
	RunE:    requireSubcommand,
	Long: `Manage the roster of agents registered in this workspace.

Every agent is registered under a unique name with the terminal session
it runs in. Status moves Idle -> Working -> back to Idle (or Stalled,
set by the watchdog). Working and Stalled agents leave the roster only
through recovery; Idle agents are removed with 'mu agent close'.`,
}

var agentCreateCmd = &cobra.Command{
	Use:   "create <name> <sessionId>",
	Short: "Register a new agent",
	Long: `Register a new agent in the roster.

The agent starts Idle. Names must be unique within the workspace;
sessions may be shared by several agents.

EXAMPLES:
  mu agent create rust-fixer session-42
  mu agent create reviewer session-42 --task "review PR 1183"`,
	Args: cobra.ExactArgs(2),
	RunE: runAgentCreate,
}

var agentStatusCmd = &cobra.Command{
	Use:   "status <name> <idle|working|stalled>",
	Short: "Change an agent's status",
	Long: `Change an agent's status.

Transitions follow the lifecycle: an Idle agent may start Working, a
Working agent may return to Idle or be marked Stalled. Anything else is
rejected. Moving to Working also refreshes the agent's activity clock.`,
	Args: cobra.ExactArgs(2),
	RunE: runAgentStatus,
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Args:  cobra.NoArgs,
	RunE:  runAgentList,
}

var agentShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one agent in detail",
	Args:  cobra.ExactArgs(1),
	RunE:  runAgentShow,
}

var agentCloseCmd = &cobra.Command{
	Use:   "close <name>",
	Short: "Deregister an idle agent",
	Long: `Deregister an Idle agent.

Working and Stalled agents cannot be closed; they leave the roster only
when the watchdog (or 'mu release-agent' plus recovery) tears them down.`,
	Args: cobra.ExactArgs(1),
	RunE: runAgentClose,
}

func init() {
	agentCreateCmd.Flags().StringVar(&agentCreateTask, "task", "",
		"Initial task description")
	agentListCmd.Flags().StringVar(&agentListStatus, "status", "",
		"Only agents in this state (idle, working, stalled)")

	agentCmd.AddCommand(agentCreateCmd)
	agentCmd.AddCommand(agentStatusCmd)
	agentCmd.AddCommand(agentListCmd)
	agentCmd.AddCommand(agentShowCmd)
	agentCmd.AddCommand(agentCloseCmd)

	rootCmd.AddCommand(agentCmd)
}

func runAgentCreate(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	name, sessionID := args[0], args[1]
	var agent *roster.Agent
	if agentCreateTask != "" {
		agent, err = env.Roster.CreateWithTask(name, sessionID, agentCreateTask)
	} else {
		agent, err = env.Roster.Create(name, sessionID)
	}
	if err != nil {
		return err
	}

	recordEvent(env, journal.AgentCreated, agent.Name, "session "+agent.SessionID)

	fmt.Printf("%s Registered %s (session %s)\n", ui.Pass(), agent.Name, agent.SessionID)
	return nil
}

func runAgentStatus(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	to, err := roster.ParseStatus(args[1])
	if err != nil {
		return err
	}
	if err := env.Roster.UpdateStatus(args[0], to); err != nil {
		return err
	}

	fmt.Printf("%s %s is now %s\n", ui.Pass(), args[0], ui.StatusBadge(to))
	return nil
}

func runAgentList(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	var agents []roster.Agent
	if agentListStatus != "" {
		status, err := roster.ParseStatus(agentListStatus)
		if err != nil {
			return err
		}
		agents, err = env.Roster.ListByStatus(status)
		if err != nil {
			return err
		}
	} else {
		agents, err = env.Roster.List()
		if err != nil {
			return err
		}
	}

	if len(agents) == 0 {
		fmt.Println("No agents registered")
		return nil
	}

	table := ui.NewTable(
		ui.Column{Name: "NAME", Width: 18},
		ui.Column{Name: "STATUS", Width: 9},
		ui.Column{Name: "SESSION", Width: 18},
		ui.Column{Name: "ACTIVITY", Width: 10},
		ui.Column{Name: "TASK", Width: 32},
	)
	for _, a := range agents {
		table.AddRow(
			a.Name,
			ui.StatusBadge(a.Status),
			a.SessionID,
			ui.RelativeTime(a.LastActivity),
			a.CurrentTask,
		)
	}
	fmt.Print(table.Render())
	return nil
}

func runAgentShow(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	agent, err := env.Roster.Find(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", ui.StatusBadge(agent.Status), ui.Bold.Render(agent.Name))
	fmt.Println()
	fmt.Printf("  Session:   %s\n", agent.SessionID)
	fmt.Printf("  Activity:  %s\n", ui.RelativeTime(agent.LastActivity))
	if agent.CurrentTask != "" {
		fmt.Printf("  Task:      %s\n", agent.CurrentTask)
	}

	records, err := env.Locks.List()
	if err != nil {
		return err
	}
	var held []string
	for _, r := range records {
		if r.OwnerSessionID == agent.SessionID {
			held = append(held, r.FilePath)
		}
	}
	if len(held) > 0 {
		fmt.Printf("  Locks:     %d\n", len(held))
		for _, p := range held {
			fmt.Printf("    %s\n", ui.ShortenPath(p, 56))
		}
	}
	return nil
}

func runAgentClose(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}

	closed, err := env.Roster.Close(args[0])
	if err != nil {
		return err
	}
	if !closed {
		fmt.Printf("No agent named %q\n", args[0])
		return NewSilentExit(1)
	}

	recordEvent(env, journal.AgentClosed, args[0], "")

	fmt.Printf("%s Closed %s\n", ui.Pass(), args[0])
	return nil
}

// recordEvent appends to the journal on a best-effort basis. Roster and
// lock state are the source of truth; a broken journal never blocks a
// command.
func recordEvent(env *env, kind journal.Kind, agent, detail string) {
	j, err := env.openJournal()
	if err != nil {
		cliLogger().Warn("journal unavailable", "error", err)
		return
	}
	defer j.Close()
	if err := j.Append(context.Background(), kind, agent, detail); err != nil {
		cliLogger().Warn("journal append failed", "error", err)
	}
}
