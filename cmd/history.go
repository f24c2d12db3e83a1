package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/facecam/internal/utils"
	"github.com/spf13/cobra"
)

var (
	historyKind     string
	historyLimit    int
	historySessions bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show journaled camera sessions, matches and registrations",
	Run: func(cmd *cobra.Command, args []string) {
		if DB == nil {
			utils.Die("History unavailable", errNoDatabase, nil)
		}
		if historySessions {
			runSessionHistory(cmd)
			return
		}
		runEventHistory(cmd)
	},
}

func init() {
	historyCmd.Flags().StringVarP(&historyKind, "kind", "k", "", "Only show events of this kind (matched, registration_complete, error, ...)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum rows to show")
	historyCmd.Flags().BoolVarP(&historySessions, "sessions", "s", false, "List camera sessions instead of events")
	rootCmd.AddCommand(historyCmd)
}

func runEventHistory(cmd *cobra.Command) {
	ctx := cmd.Context()
	events, err := DB.ListEvents(ctx, historyKind, historyLimit)
	if err != nil {
		utils.Die("Failed to list events", err, nil)
	}

	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tKIND\tNAME\tDETAIL")
	fmt.Fprintln(w, "----\t----\t----\t------")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Kind, e.Name, e.Detail)
	}
	w.Flush()

	sum, err := DB.Summarize(ctx)
	if err != nil {
		utils.Die("Failed to summarize journal", err, nil)
	}
	fmt.Fprintf(os.Stderr, "\n📊 %d sessions, %d matches, %d registrations, %d errors\n", sum.Sessions, sum.Matches, sum.Registrations, sum.Errors)
}

func runSessionHistory(cmd *cobra.Command) {
	sessions, err := DB.ListSessions(cmd.Context(), historyLimit)
	if err != nil {
		utils.Die("Failed to list sessions", err, nil)
	}

	if len(sessions) == 0 {
		fmt.Println("No camera sessions recorded.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "SESSION\tDEVICE\tSTARTED\tDURATION\tEVENTS")
	fmt.Fprintln(w, "-------\t------\t-------\t--------\t------")
	for _, s := range sessions {
		duration := "active"
		if s.EndedAt != nil {
			duration = fmtDuration(s.EndedAt.Sub(s.StartedAt))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", s.ID.String()[:8], s.DeviceID, s.StartedAt.Local().Format("2006-01-02 15:04"), duration, s.Events)
	}
	w.Flush()
}

func fmtDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
