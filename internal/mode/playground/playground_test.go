package playground

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/exp/teatest"
	zone "github.com/lrstanley/bubblezone"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/formflow/internal/config"
	"github.com/zjrosen/formflow/internal/form"
	"github.com/zjrosen/formflow/internal/validation"
)

func TestMain(m *testing.M) {
	zone.NewGlobal()
	// Force ANSI color output in tests (lipgloss disables colors when no TTY)
	lipgloss.SetColorProfile(termenv.ANSI256)
	os.Exit(m.Run())
}

var signupFields = []config.FieldConfig{
	{Name: "username", Label: "Username", Validators: map[string]any{"required": true, "min_length": 3}},
	{Name: "email", Label: "Email", Validators: map[string]any{"email": true}},
	{Name: "password", Label: "Password", Secret: true, Validators: map[string]any{"required": true}},
}

func newTestModel(t *testing.T, cfg form.Config, fields []config.FieldConfig) (Model, *form.Form) {
	t.Helper()
	if cfg.Validators == nil {
		cfg.Validators = validation.Builtins()
	}
	f := form.New(cfg)
	t.Cleanup(func() { _ = f.Close() })

	m, err := New(f, "Sign up", fields)
	require.NoError(t, err)
	return m, f
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	for _, r := range text {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestNew_AttachesFieldsAndFocusesFirst(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields)

	require.Equal(t, []string{"username", "email", "password"}, f.FieldNames())
	require.Equal(t, "username", f.Focused())
	require.True(t, m.inputs[0].model.Focused())
	require.False(t, m.inputs[1].model.Focused())
}

func TestNew_UnknownValidator(t *testing.T) {
	f := form.New(form.Config{Validators: validation.Builtins()})
	defer func() { _ = f.Close() }()

	_, err := New(f, "Broken", []config.FieldConfig{
		{Name: "a", Validators: map[string]any{"requird": true}},
	})
	require.ErrorIs(t, err, validation.ErrUnknownValidator)
}

func TestNew_SeedsDefaults(t *testing.T) {
	cfg := form.DefaultConfig()
	cfg.Values = map[string]any{"email": "ada@example.com"}
	m, f := newTestModel(t, cfg, signupFields)

	require.Equal(t, "ada@example.com", m.Values()["email"])
	require.Equal(t, "ada@example.com", f.GetField("email").Value)
	require.True(t, f.GetField("email").Pristine)
}

func TestTyping_ChangesField(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields)

	m = typeText(t, m, "ada")
	require.Equal(t, "ada", m.Values()["username"])
	require.Equal(t, "ada", f.GetField("username").Value)
	require.False(t, f.GetField("username").Pristine)

	require.Eventually(t, func() bool {
		return f.GetField("username").Status == form.StatusValid
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTyping_ShortValueIsInvalid(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields)

	m = typeText(t, m, "ab")
	require.Eventually(t, func() bool {
		return f.GetField("username").Status == form.StatusInvalid
	}, 2*time.Second, 5*time.Millisecond)

	view := m.View()
	require.Contains(t, view, "[Form-error]")
	require.Contains(t, view, "at least 3 characters")
}

func TestTab_CyclesFocus(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, "email", f.Focused())
	require.True(t, m.inputs[1].model.Focused())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, "username", f.Focused(), "expected wrap to first field")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	require.Equal(t, "password", f.Focused())
	require.True(t, m.inputs[2].model.Focused())
}

func TestEnter_AdvancesThenSubmits(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields[:2])

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, "email", f.Focused())
	require.Zero(t, m.attempts)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.Equal(t, 1, m.attempts)
	require.NotNil(t, cmd)

	msg := cmd()
	done, ok := msg.(attemptMsg)
	require.True(t, ok)
	require.Equal(t, form.OutcomeFailed, done.attempt.Outcome())

	m = update(t, m, msg)
	require.Contains(t, m.View(), "invalid: username")
}

func TestEnter_DisabledTabOnEnter(t *testing.T) {
	cfg := form.DefaultConfig()
	cfg.DisableTabOnEnter = true
	m, f := newTestModel(t, cfg, signupFields)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Equal(t, "username", f.Focused())
	require.Zero(t, next.(Model).attempts)
}

func TestSecretFieldIsMasked(t *testing.T) {
	m, _ := newTestModel(t, form.DefaultConfig(), signupFields)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	m = typeText(t, m, "hunter2")
	require.Equal(t, "hunter2", m.Values()["password"])
	require.NotContains(t, m.View(), "hunter2")
}

func TestPristineErrorsHiddenUntilSubmit(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields)

	require.Eventually(t, func() bool {
		return f.GetField("password").Status == form.StatusInvalid
	}, 2*time.Second, 5*time.Millisecond)
	require.NotContains(t, m.View(), "This field is required")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlS})
	m = update(t, next.(Model), cmd())
	require.Contains(t, m.View(), "This field is required")
}

func TestLogPanel_Toggle(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlL})
	require.True(t, m.logs.Visible())
	require.Contains(t, m.View(), "Logs")

	// Keys go to the panel while it is open.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'w'}})
	require.Equal(t, "", f.GetField("username").Value)
	require.Contains(t, m.logs.hints(), "Warn")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, m.logs.Visible())
	require.NotContains(t, m.View(), "[c] Clear")
}

func TestMouse_ClickFocusesField(t *testing.T) {
	m, f := newTestModel(t, form.DefaultConfig(), signupFields)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	_ = m.View()

	id := MakeFieldZoneID("password")
	require.Eventually(t, func() bool {
		return !zone.Get(id).IsZero()
	}, 2*time.Second, 5*time.Millisecond)

	z := zone.Get(id)
	m = update(t, m, tea.MouseMsg{
		X:      z.StartX,
		Y:      z.StartY,
		Action: tea.MouseActionRelease,
		Button: tea.MouseButtonLeft,
	})
	require.Equal(t, "password", f.Focused())
	require.True(t, m.inputs[2].model.Focused())
}

func TestProgram_FillAndSubmit(t *testing.T) {
	saved := make(chan map[string]any, 1)
	cfg := form.DefaultConfig()
	cfg.OnSuccess = func(data map[string]any, _ form.RegisterFunc) {
		saved <- data
	}
	m, _ := newTestModel(t, cfg, signupFields[:1])

	tm := teatest.NewTestModel(t, m, teatest.WithInitialTermSize(80, 24))
	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return bytes.Contains(b, []byte("Username"))
	}, teatest.WithDuration(2*time.Second))

	tm.Type("grace")
	tm.Send(tea.KeyMsg{Type: tea.KeyEnter})

	select {
	case data := <-saved:
		require.Equal(t, map[string]any{"username": "grace"}, data)
	case <-time.After(2 * time.Second):
		t.Fatal("success handler not called")
	}

	teatest.WaitFor(t, tm.Output(), func(b []byte) bool {
		return strings.Contains(string(b), "submitted")
	}, teatest.WithDuration(2*time.Second))

	tm.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
	final := tm.FinalModel(t, teatest.WithFinalTimeout(2*time.Second)).(Model)
	require.Equal(t, "grace", final.Values()["username"])
}
