package consultpro

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/consultpro/agents/pkg/audit"
	"github.com/consultpro/agents/pkg/config"
	"github.com/consultpro/agents/pkg/store"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"audit"},
	Short:   "View recorded agent conversations",
	RunE:    runConversations,
}

var (
	convAgentType string
	convLimit     int
	convSince     string
)

func init() {
	conversationsCmd.Flags().StringVar(&convAgentType, "type", "", "filter by agent type (a2a, mcp, analytics, planning, client-insights)")
	conversationsCmd.Flags().IntVar(&convLimit, "limit", 50, "maximum number of entries")
	conversationsCmd.Flags().StringVar(&convSince, "since", "", "show entries since (e.g. 2024-01-01)")
}

func runConversations(cmd *cobra.Command, args []string) error {
	db, err := store.New(config.Current().Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() { _ = db.Close() }()

	auditLog, err := audit.New(db.DB())
	if err != nil {
		return fmt.Errorf("initializing audit logger: %w", err)
	}

	filter := audit.Filter{
		AgentType: convAgentType,
		Limit:     convLimit,
	}
	if convSince != "" {
		t, err := time.Parse("2006-01-02", convSince)
		if err != nil {
			return fmt.Errorf("invalid --since format (use YYYY-MM-DD): %w", err)
		}
		filter.Since = t
	}

	entries, err := auditLog.Query(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("querying conversations: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("No conversations found.")
		return nil
	}

	for _, e := range entries {
		fmt.Printf("[%s] %-15s %-14s %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.AgentType,
			humanize.Time(e.CreatedAt),
			truncate(e.Message, 60),
		)
	}

	fmt.Printf("\n%d entries\n", len(entries))
	return nil
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-3]) + "..."
}
