package cmd

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
	"github.com/spf13/cobra"

	"github.com/zjrosen/formflow/internal/log"
	"github.com/zjrosen/formflow/internal/mode/playground"
)

var playgroundEventsDir string

var playgroundCmd = &cobra.Command{
	Use:   "playground",
	Short: "Fill in the configured form interactively",
	Long: `Launch an interactive form built from the configured fields.

Fields are validated as you type. Successful submissions are saved to the
submission store; every form event is appended to the event log. Editing the
config file while the playground runs reloads the validators.`,
	RunE: runPlayground,
}

func init() {
	rootCmd.AddCommand(playgroundCmd)
	playgroundCmd.Flags().StringVar(&playgroundEventsDir, "events-dir", "", "directory of the form event log (default next to the store)")
}

func runPlayground(cmd *cobra.Command, _ []string) error {
	if len(cfg.Form.Fields) == 0 {
		return errors.New("no form fields configured")
	}
	if logCleanup == nil {
		// Buffer only, so the log panel has something to show.
		log.InitWithWriter(nil, logBufferSize)
	}

	eventsDir := playgroundEventsDir
	if eventsDir == "" {
		eventsDir = defaultEventsDir(cfg)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, cfg, appOptions{save: true, eventsDir: eventsDir, watch: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	model, err := playground.New(a.form, cfg.Form.Title, cfg.Form.Fields)
	if err != nil {
		return err
	}

	zone.NewGlobal()
	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running playground: %w", err)
	}
	return nil
}
