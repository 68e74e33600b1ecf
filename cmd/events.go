package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/formflow/internal/form/persistence"
)

var eventsDir string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Replay the form event log",
	Long: `Replay the JSONL form event log written by the playground (or by check
--events-dir) and print the last known state of every field followed by the
outcome of every submit attempt.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsDir, "dir", "", "directory of the event log (default next to the store)")
}

func runEvents(cmd *cobra.Command, _ []string) error {
	dir := eventsDir
	if dir == "" {
		dir = defaultEventsDir(cfg)
	}
	events, err := persistence.LoadPersistedEvents(dir)
	if err != nil {
		return err
	}
	writeReplay(cmd.OutOrStdout(), persistence.ReplayEvents(events), len(events))
	return nil
}

func writeReplay(w io.Writer, r *persistence.Replay, total int) {
	_, _ = fmt.Fprintf(w, "%d events\n", total)
	if len(r.Validators) > 0 {
		_, _ = fmt.Fprintf(w, "validators: %s\n", strings.Join(r.Validators, ", "))
	}

	names := r.FieldNames()
	if len(names) > 0 {
		width := runewidth.StringWidth("FIELD")
		for _, name := range names {
			width = max(width, runewidth.StringWidth(name))
		}

		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintf(w, "%s  %-8s %s\n", runewidth.FillRight("FIELD", width), "STATUS", "VALUE")
		for _, name := range names {
			st := r.Fields[name]
			line := fmt.Sprintf("%s  %-8s %v", runewidth.FillRight(name, width), st.Status, valueOrEmpty(st.Value))
			if st.Error != nil {
				line += fmt.Sprintf("  (%v)", st.Error)
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}

	if len(r.Submissions) > 0 {
		_, _ = fmt.Fprintln(w)
		for _, s := range r.Submissions {
			line := fmt.Sprintf("%s  %s", s.AttemptID, s.Outcome)
			if s.Error != "" {
				line += ": " + s.Error
			}
			if len(s.Errors) > 0 {
				line += fmt.Sprintf(" (%d invalid)", len(s.Errors))
			}
			_, _ = fmt.Fprintln(w, line)
		}
	}
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
