package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/cobra"

	"github.com/zjrosen/formflow/internal/config"
	"github.com/zjrosen/formflow/internal/form"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("aborted")

var fillSave bool

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill in the configured form with line prompts",
	Long: `Prompt for every configured field in turn.

Each answer is validated by the form before the next prompt; an invalid answer
is reported and asked again. The form is submitted after the last field.`,
	Args: cobra.NoArgs,
	RunE: runFill,
}

func init() {
	rootCmd.AddCommand(fillCmd)
	fillCmd.Flags().BoolVar(&fillSave, "save", true, "save the submission to the store")
}

// prompter asks for one answer. validate is called with every candidate
// answer; a non-nil error rejects it and the question is asked again.
type prompter interface {
	Input(message, def string, validate func(string) error) (string, error)
	Password(message string, validate func(string) error) (string, error)
}

type surveyPrompter struct{}

func (surveyPrompter) Input(message, def string, validate func(string) error) (string, error) {
	var out string
	prompt := &survey.Input{
		Message: message,
		Default: def,
	}
	if err := survey.AskOne(prompt, &out, survey.WithValidator(surveyValidator(validate))); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func (surveyPrompter) Password(message string, validate func(string) error) (string, error) {
	var out string
	prompt := &survey.Password{
		Message: message,
	}
	if err := survey.AskOne(prompt, &out, survey.WithValidator(surveyValidator(validate))); err != nil {
		return "", translateSurveyErr(err)
	}
	return out, nil
}

func surveyValidator(validate func(string) error) survey.Validator {
	return func(ans interface{}) error {
		s, _ := ans.(string)
		return validate(s)
	}
}

func translateSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrAborted
	}
	return err
}

func runFill(cmd *cobra.Command, _ []string) error {
	if len(cfg.Form.Fields) == 0 {
		return errors.New("no form fields configured")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{save: fillSave})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	attempt, err := fillForm(ctx, a.form, cfg.Form, surveyPrompter{})
	if err != nil {
		return err
	}
	return reportAttempt(cmd.OutOrStdout(), attempt)
}

// fillForm prompts for every field of fc and submits the form. Each answer
// is run through the field's validators before it is accepted.
func fillForm(ctx context.Context, f *form.Form, fc config.FormConfig, p prompter) (*form.Attempt, error) {
	for _, field := range fc.Fields {
		handle, err := f.Attach(field.Name, field.Spec())
		if err != nil {
			return nil, err
		}

		validate := func(answer string) error {
			st, err := handle.ChangeAndWait(ctx, answer)
			if err != nil {
				return err
			}
			if st.Status == form.StatusInvalid {
				return fmt.Errorf("%v", st.Error)
			}
			return nil
		}

		handle.Focus()
		message := field.DisplayLabel() + ":"
		if field.Secret {
			_, err = p.Password(message, validate)
		} else {
			def := ""
			if field.Default != nil {
				def = fmt.Sprint(field.Default)
			}
			_, err = p.Input(message, def, validate)
		}
		if err != nil {
			return nil, err
		}
	}

	attempt := f.Submit()
	if _, err := attempt.Wait(ctx); err != nil {
		return nil, err
	}
	return attempt, nil
}

func reportAttempt(w io.Writer, a *form.Attempt) error {
	switch a.Outcome() {
	case form.OutcomeSucceeded, form.OutcomeSettledOK:
		_, _ = fmt.Fprintln(w, "Submitted.")
		return nil
	case form.OutcomeFailed:
		errs := a.Errors()
		for _, name := range slices.Sorted(maps.Keys(errs)) {
			_, _ = fmt.Fprintf(w, "%s: %v\n", name, errs[name])
		}
		return ErrInvalidForm
	default:
		return fmt.Errorf("submit %s: %w", a.Outcome(), a.Err())
	}
}
