// Package playground is an interactive terminal form driving form.Form.
//
// Every keystroke is handed to the form as a field change, Enter goes
// through Form.HandleEnter, and the view is redrawn from form events.
package playground

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/zjrosen/formflow/internal/config"
	"github.com/zjrosen/formflow/internal/form"
	"github.com/zjrosen/formflow/internal/log"
)

// eventMsg carries one form event into the update loop.
type eventMsg struct {
	event form.Event
}

// attemptMsg is sent when a submit attempt started from the playground ends.
type attemptMsg struct {
	attempt *form.Attempt
}

type input struct {
	field *form.Field
	label string
	model textinput.Model
}

// Model holds the playground state.
type Model struct {
	form        *form.Form
	title       string
	inputs      []input
	events      <-chan form.Event
	unsubscribe func()

	logs     logPanel
	status   string
	attempts int
	width    int
	height   int
	quitting bool
}

// New attaches one input per configured field to f. Defaults come from the
// form's values; the first field gets focus.
func New(f *form.Form, title string, fields []config.FieldConfig) (Model, error) {
	m := Model{
		form:  f,
		title: title,
		logs:  newLogPanel(),
	}

	for _, fc := range fields {
		field, err := f.Attach(fc.Name, fc.Spec())
		if err != nil {
			return Model{}, err
		}

		ti := textinput.New()
		ti.Prompt = ""
		ti.Placeholder = fc.DisplayLabel()
		ti.Width = 40
		if fc.Secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}

		if err := field.Seed(""); err != nil {
			return Model{}, err
		}
		if v := field.State().Value; v != nil && v != "" {
			ti.SetValue(fmt.Sprint(v))
		}

		m.inputs = append(m.inputs, input{
			field: field,
			label: fc.DisplayLabel(),
			model: ti,
		})
	}

	m.events, m.unsubscribe = f.Subscribe(0)
	m.syncFocus()
	return m, nil
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForEvent(m.events))
}

func waitForEvent(ch <-chan form.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg{event: e}
	}
}

func waitForAttempt(a *form.Attempt) tea.Cmd {
	return func() tea.Msg {
		<-a.Done()
		return attemptMsg{attempt: a}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logs.SetSize(msg.Width, msg.Height)
		return m, nil

	case eventMsg:
		if msg.event.Type == form.EventFocusChanged {
			m.syncFocus()
		}
		return m, waitForEvent(m.events)

	case attemptMsg:
		m.status = describeAttempt(msg.attempt)
		log.Debug(log.CatUI, "attempt finished", "attempt", msg.attempt.ID, "outcome", msg.attempt.Outcome())
		return m, nil

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m.quit()
	}

	if m.logs.Visible() {
		m.logs, _ = m.logs.Update(msg)
		return m, nil
	}

	switch msg.String() {
	case "ctrl+l":
		m.logs.Toggle()
		return m, nil
	case "tab", "down":
		m.moveFocus(1)
		return m, nil
	case "shift+tab", "up":
		m.moveFocus(-1)
		return m, nil
	case "ctrl+s":
		return m.submit(m.form.Submit())
	case "enter":
		action, attempt := m.form.HandleEnter()
		if action == form.EnterSubmitted {
			return m.submit(attempt)
		}
		return m, nil
	}

	idx := m.focusedIndex()
	if idx < 0 {
		return m, nil
	}
	in := &m.inputs[idx]
	before := in.model.Value()
	var cmd tea.Cmd
	in.model, cmd = in.model.Update(msg)
	if after := in.model.Value(); after != before {
		if err := in.field.Change(after); err != nil {
			log.ErrorErr(log.CatUI, "field change rejected", err, "field", in.field.Name())
		}
	}
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.logs.Visible() || msg.Action != tea.MouseActionRelease || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}
	if zone.Get(submitZoneID).InBounds(msg) {
		return m.submit(m.form.Submit())
	}
	for _, in := range m.inputs {
		if zone.Get(makeFieldZoneID(in.field.Name())).InBounds(msg) {
			m.form.Focus(in.field.Name())
			m.syncFocus()
			break
		}
	}
	return m, nil
}

func (m Model) submit(a *form.Attempt) (tea.Model, tea.Cmd) {
	m.attempts++
	m.status = "submitting…"
	return m, waitForAttempt(a)
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return m, tea.Quit
}

// moveFocus focuses the field delta positions away, wrapping around.
func (m *Model) moveFocus(delta int) {
	if len(m.inputs) == 0 {
		return
	}
	idx := m.focusedIndex()
	if idx < 0 {
		idx = 0
	} else {
		idx = (idx + delta + len(m.inputs)) % len(m.inputs)
	}
	m.form.Focus(m.inputs[idx].field.Name())
	m.syncFocus()
}

func (m Model) focusedIndex() int {
	focused := m.form.Focused()
	for i, in := range m.inputs {
		if in.field.Name() == focused {
			return i
		}
	}
	return -1
}

// syncFocus mirrors the navigator's focus onto the text inputs.
func (m *Model) syncFocus() {
	focused := m.form.Focused()
	for i := range m.inputs {
		if m.inputs[i].field.Name() == focused {
			m.inputs[i].model.Focus()
		} else {
			m.inputs[i].model.Blur()
		}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n")

	labelWidth := 0
	for _, in := range m.inputs {
		labelWidth = max(labelWidth, runewidth.StringWidth(in.label))
	}

	errWidth := 80
	if m.width > 0 {
		errWidth = max(m.width-labelWidth-6, 20)
	}
	for _, in := range m.inputs {
		sb.WriteString(zone.Mark(makeFieldZoneID(in.field.Name()), m.renderRow(in, labelWidth, errWidth)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	button := buttonStyle
	if m.form.Submitting() {
		button = busyButtonStyle
	}
	sb.WriteString(zone.Mark(submitZoneID, button.Render("Submit")))
	sb.WriteString("\n")

	if m.status != "" {
		sb.WriteString(m.status)
		sb.WriteString("\n")
	}
	if err := m.form.SubmitError(); err != nil {
		sb.WriteString(errorStyle.Render(wordwrap.String("Submit failed: "+err.Error(), errWidth)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(mutedStyle.Render("Tab/Shift+Tab move  Enter next/submit  Ctrl+S submit  Ctrl+L logs  Ctrl+C quit"))

	return m.logs.Place(zone.Scan(sb.String()))
}

func (m Model) renderRow(in input, labelWidth, errWidth int) string {
	st := in.field.State()

	label := labelStyle
	if st.Focused {
		label = focusedLabelStyle
	}
	row := lipgloss.JoinHorizontal(lipgloss.Top,
		label.Render(runewidth.FillRight(in.label, labelWidth)),
		"  ",
		statusGlyph(st),
		" ",
		in.model.View(),
	)

	// Pristine fields keep their error hidden until the first submit.
	if st.Status != form.StatusInvalid || (st.Pristine && m.attempts == 0) {
		return row
	}
	indent := strings.Repeat(" ", labelWidth+4)
	msg := wordwrap.String(fmt.Sprintf("[%s] %s", m.form.ErrorClass(), describePayload(st.Error)), errWidth)
	var lines []string
	for _, line := range strings.Split(msg, "\n") {
		lines = append(lines, indent+errorStyle.Render(line))
	}
	return row + "\n" + strings.Join(lines, "\n")
}

func statusGlyph(st form.FieldState) string {
	switch st.Status {
	case form.StatusLoading:
		return loadingStyle.Render("…")
	case form.StatusInvalid:
		return errorStyle.Render("✗")
	default:
		return successStyle.Render("✓")
	}
}

func describePayload(payload any) string {
	if err, ok := payload.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(payload)
}

func describeAttempt(a *form.Attempt) string {
	switch a.Outcome() {
	case form.OutcomeFailed:
		errs := a.Errors()
		names := make([]string, 0, len(errs))
		for name := range errs {
			names = append(names, name)
		}
		sort.Strings(names)
		return errorStyle.Render(fmt.Sprintf("%d invalid: %s", len(names), strings.Join(names, ", ")))
	case form.OutcomeSucceeded, form.OutcomeSettledOK:
		return successStyle.Render("submitted")
	case form.OutcomeSettledError:
		return errorStyle.Render("submission failed")
	case form.OutcomeAborted:
		return errorStyle.Render("submission aborted")
	default:
		return ""
	}
}

// Values returns the current text of every input, keyed by field name.
func (m Model) Values() map[string]string {
	out := make(map[string]string, len(m.inputs))
	for _, in := range m.inputs {
		out[in.field.Name()] = in.model.Value()
	}
	return out
}
