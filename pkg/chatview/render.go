package chatview

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/samber/lo"

	"github.com/rhuss/codechat/pkg/api"
)

// DefaultErrorKind labels a failure that carries no kind.
const DefaultErrorKind = "Execution Error"

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	toolTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorTitle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	codeStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)

	successStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("2")).
			PaddingLeft(1)

	failureStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("9")).
			PaddingLeft(1)

	preStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// Renderer draws a Conversation as terminal text.
type Renderer struct {
	md    *glamour.TermRenderer
	width int
}

// NewRenderer creates a renderer that wraps prose at width. style is a
// glamour standard style such as "light", "dark" or "notty".
func NewRenderer(width int, style string) (*Renderer, error) {
	if width < 20 {
		width = 20
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-4),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	return &Renderer{md: md, width: width}, nil
}

// Conversation renders every message. spinner is drawn next to pending
// invocations.
func (r *Renderer) Conversation(c *Conversation, spinner string) string {
	var sb strings.Builder
	for _, m := range c.Messages {
		sb.WriteString(r.Message(m, spinner))
		sb.WriteString("\n")
	}
	if c.InFlight && (len(c.Messages) == 0 || c.Messages[len(c.Messages)-1].Role == api.RoleUser) {
		sb.WriteString(pendingStyle.Render(spinner + " Thinking..."))
		sb.WriteString("\n")
	}
	if c.Err != nil {
		sb.WriteString(errorTitle.Render("Error: "))
		sb.WriteString(c.Err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Message renders one chat bubble.
func (r *Renderer) Message(m Message, spinner string) string {
	var sb strings.Builder
	if m.Role == api.RoleUser {
		sb.WriteString(userStyle.Render("You:"))
	} else {
		sb.WriteString(assistantStyle.Render("Assistant:"))
	}
	sb.WriteString("\n")

	for _, p := range m.Parts {
		if p.Invocation != nil {
			sb.WriteString(r.Invocation(*p.Invocation, spinner))
			sb.WriteString("\n")
			continue
		}
		if m.Role == api.RoleUser {
			sb.WriteString(p.Text)
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(r.Markdown(p.Text))
	}
	return sb.String()
}

// Markdown renders prose, falling back to the raw text.
func (r *Renderer) Markdown(text string) string {
	out, err := r.md.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// Invocation renders a tool block: the code followed by a pending indicator
// or the result panel.
func (r *Renderer) Invocation(inv api.ToolInvocation, spinner string) string {
	blocks := []string{
		toolTitleStyle.Render("▶ " + inv.Name),
		codeStyle.Width(r.width - 2).Render(strings.TrimRight(inv.Arguments.Code, "\n")),
	}

	switch {
	case inv.State == api.InvocationPending || inv.Result == nil:
		blocks = append(blocks, pendingStyle.Render(spinner+" Running..."))
	case inv.Result.Success != nil:
		blocks = append(blocks, r.Success(*inv.Result.Success))
	default:
		blocks = append(blocks, r.Failure(*inv.Result.Failure))
	}
	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

// Success renders stdout followed by each artifact.
func (r *Renderer) Success(s api.ExecutionSuccess) string {
	var blocks []string
	if s.Stdout != "" {
		blocks = append(blocks, preStyle.Render(strings.TrimRight(s.Stdout, "\n")))
	}
	blocks = append(blocks, lo.Map(s.Artifacts, func(a api.Artifact, _ int) string {
		return renderArtifact(a)
	})...)

	if len(blocks) == 0 {
		blocks = append(blocks, dimStyle.Render("Code executed successfully"))
	}
	return successStyle.Render(lipgloss.JoinVertical(lipgloss.Left, blocks...))
}

// Failure renders the error kind, message and traceback.
func (r *Renderer) Failure(f api.ExecutionFailure) string {
	kind := lo.Ternary(f.ErrorKind != "", f.ErrorKind, DefaultErrorKind)
	blocks := []string{errorTitle.Render(kind), f.Message}
	if f.Traceback != "" {
		blocks = append(blocks, dimStyle.Render(strings.TrimRight(f.Traceback, "\n")))
	}
	return failureStyle.Render(lipgloss.JoinVertical(lipgloss.Left, blocks...))
}

func renderArtifact(a api.Artifact) string {
	switch a.Kind {
	case api.ArtifactImage:
		return dimStyle.Render(fmt.Sprintf("[image %s, %d bytes]", a.MIMEType, decodedLen(a.Data)))
	case api.ArtifactText:
		return preStyle.Render(strings.TrimRight(a.Text, "\n"))
	default:
		return dimStyle.Render(a.Raw)
	}
}

func decodedLen(data string) int {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return base64.StdEncoding.DecodedLen(len(data))
	}
	return len(b)
}
