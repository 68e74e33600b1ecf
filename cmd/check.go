package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/formflow/internal/config"
	"github.com/zjrosen/formflow/internal/form"
)

// ErrInvalidForm is returned by check when at least one field is invalid.
var ErrInvalidForm = errors.New("form has invalid fields")

var (
	checkLatency   time.Duration
	checkSave      bool
	checkPlain     bool
	checkEventsDir string
	checkTimeout   time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check VALUES",
	Short: "Validate a YAML file of field values and submit them",
	Long: `Validate a YAML mapping of field values against the configured form.

Every configured field is changed to its value from the file. Fields missing
from the file are seeded with their configured default. The form is then
submitted and a report is printed. The command exits non-zero when a field is
invalid. Use "-" to read the values from stdin.

Examples:
  formflow check values.yaml
  formflow check --latency 200ms --save values.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().DurationVar(&checkLatency, "latency", 0, "delay every validator (overrides validation.latency when positive)")
	checkCmd.Flags().BoolVar(&checkSave, "save", false, "save a successful submission to the store")
	checkCmd.Flags().BoolVar(&checkPlain, "plain", false, "print the report without colors")
	checkCmd.Flags().StringVar(&checkEventsDir, "events-dir", "", "append form events to the event log in this directory")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 30*time.Second, "give up waiting for validations after this long")
}

func runCheck(cmd *cobra.Command, args []string) error {
	values, err := readValues(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	c := cfg
	if checkLatency > 0 {
		c.Validation.Latency = checkLatency
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	a, err := newApp(ctx, c, appOptions{save: checkSave, eventsDir: checkEventsDir})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	report, err := checkForm(ctx, a.form, c.Form, values)
	if err != nil {
		return err
	}

	out, err := renderMarkdown(report.Markdown(), checkPlain)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(cmd.OutOrStdout(), out)

	switch report.Outcome {
	case form.OutcomeFailed:
		return ErrInvalidForm
	case form.OutcomeSettledError, form.OutcomeAborted:
		return report.Err
	}
	return nil
}

// readValues decodes a YAML mapping of field values from path, or from stdin
// when path is "-".
func readValues(stdin io.Reader, path string) (map[string]any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // user-chosen values file
	}
	if err != nil {
		return nil, fmt.Errorf("reading values: %w", err)
	}

	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing values %s: %w", path, err)
	}
	return values, nil
}

// fieldRow is one line of a check report.
type fieldRow struct {
	Name   string
	Label  string
	Status form.Status
	Value  string
	Error  string
}

// checkReport is the result of checking a values file.
type checkReport struct {
	Title     string
	AttemptID string
	Outcome   form.AttemptOutcome
	Err       error
	Rows      []fieldRow
	// Ignored lists keys of the values file that name no configured field.
	Ignored []string
}

// checkForm attaches every configured field, changes it to its value (or
// seeds the default), submits without waiting for the validations itself and
// collects the final state of every field.
func checkForm(ctx context.Context, f *form.Form, fc config.FormConfig, values map[string]any) (*checkReport, error) {
	for _, field := range fc.Fields {
		handle, err := f.Attach(field.Name, field.Spec())
		if err != nil {
			return nil, err
		}
		if v, ok := values[field.Name]; ok {
			err = handle.Change(v)
		} else {
			err = handle.Seed("")
		}
		if err != nil {
			return nil, err
		}
	}

	attempt := f.Submit()
	outcome, err := attempt.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("waiting for submit: %w", err)
	}

	report := &checkReport{
		Title:     fc.Title,
		AttemptID: attempt.ID,
		Outcome:   outcome,
		Err:       attempt.Err(),
	}
	for _, field := range fc.Fields {
		st := f.GetField(field.Name)
		row := fieldRow{
			Name:   field.Name,
			Label:  field.DisplayLabel(),
			Status: st.Status,
			Value:  displayValue(st.Value, field.Secret),
		}
		if st.Status == form.StatusInvalid {
			row.Error = fmt.Sprint(st.Error)
		}
		report.Rows = append(report.Rows, row)
	}
	for name := range values {
		if _, ok := fc.Field(name); !ok {
			report.Ignored = append(report.Ignored, name)
		}
	}
	slices.Sort(report.Ignored)
	return report, nil
}

func displayValue(v any, secret bool) string {
	switch {
	case v == nil:
		return ""
	case secret:
		if fmt.Sprint(v) == "" {
			return ""
		}
		return "••••••"
	default:
		return fmt.Sprint(v)
	}
}

// Markdown renders the report as a markdown document.
func (r *checkReport) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", r.Title)

	sb.WriteString("| Field | Status | Value | Error |\n")
	sb.WriteString("| --- | --- | --- | --- |\n")
	for _, row := range r.Rows {
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
			escapeCell(row.Label), row.Status, escapeCell(row.Value), escapeCell(row.Error))
	}
	sb.WriteString("\n")

	invalid := 0
	for _, row := range r.Rows {
		if row.Status == form.StatusInvalid {
			invalid++
		}
	}
	switch r.Outcome {
	case form.OutcomeFailed:
		fmt.Fprintf(&sb, "**Result:** %s, %d invalid field(s)\n", r.Outcome, invalid)
	case form.OutcomeSettledError, form.OutcomeAborted:
		fmt.Fprintf(&sb, "**Result:** %s: %v\n", r.Outcome, r.Err)
	default:
		fmt.Fprintf(&sb, "**Result:** %s\n", r.Outcome)
	}

	if len(r.Ignored) > 0 {
		fmt.Fprintf(&sb, "\nIgnored unknown fields: %s\n", strings.Join(r.Ignored, ", "))
	}
	return sb.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// renderMarkdown renders md for the terminal. plain disables colors.
func renderMarkdown(md string, plain bool) (string, error) {
	style := glamour.WithAutoStyle()
	if plain {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return "", fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("rendering report: %w", err)
	}
	return out, nil
}
