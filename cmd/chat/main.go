// Command chat is a terminal client for the codechat server.
//
// Usage:
//
//	chat -url http://localhost:8080
//
// Enter sends the message, Ctrl+C or Esc quits. CODECHAT_URL and
// CODECHAT_API_KEY provide defaults for the flags. Set CODECHAT_CHAT_LOG to
// a file path to keep a debug log.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rhuss/codechat/pkg/api"
	"github.com/rhuss/codechat/pkg/chatview"
	"github.com/rhuss/codechat/pkg/debug"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// streamEventMsg carries one event of the running turn.
type streamEventMsg api.StreamEvent

// streamEndMsg is sent once the turn's stream is closed.
type streamEndMsg struct{ err error }

type model struct {
	ctx    context.Context
	client *chatview.Client

	conv     chatview.Conversation
	renderer *chatview.Renderer
	events   <-chan tea.Msg

	viewport viewport.Model
	textarea textarea.Model
	spinner  spinner.Model

	width int
}

func initialModel(ctx context.Context, client *chatview.Client) model {
	ta := textarea.New()
	ta.Placeholder = "Ask something that needs code..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 4000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	vp := viewport.New(80, 20)
	r, _ := chatview.NewRenderer(80, "light")

	return model{
		ctx:      ctx,
		client:   client,
		renderer: r,
		viewport: vp,
		textarea: ta,
		spinner:  sp,
		width:    80,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-m.textarea.Height()-3, 0)
		m.textarea.SetWidth(msg.Width)
		if r, err := chatview.NewRenderer(msg.Width, "light"); err == nil {
			m.renderer = r
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		if m.conv.InFlight {
			m.refresh()
		}

	case streamEventMsg:
		m.conv.Apply(api.StreamEvent(msg))
		m.refresh()
		cmds = append(cmds, waitForStream(m.events))

	case streamEndMsg:
		if msg.err != nil {
			slog.Debug("stream ended", "error", msg.err)
			m.conv.Fail(msg.err)
		}
		m.events = nil
		m.refresh()
	}

	var cmd tea.Cmd
	if _, isKey := msg.(tea.KeyMsg); !isKey || !m.conv.InFlight {
		m.textarea, cmd = m.textarea.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit starts a turn with the typed message. Submission is ignored while a
// turn is streaming.
func (m model) submit() (tea.Model, tea.Cmd) {
	if m.conv.InFlight {
		return m, nil
	}
	if err := m.conv.Submit(m.textarea.Value()); err != nil {
		return m, nil
	}
	m.textarea.Reset()

	events := make(chan tea.Msg, 32)
	m.events = events
	history := m.conv.History()
	go func() {
		defer close(events)
		err := m.client.Stream(m.ctx, history, func(ev api.StreamEvent) error {
			events <- streamEventMsg(ev)
			return nil
		})
		events <- streamEndMsg{err: err}
	}()

	m.refresh()
	return m, waitForStream(events)
}

// refresh re-renders the conversation and scrolls to the newest content.
func (m *model) refresh() {
	if m.renderer == nil {
		return
	}
	m.viewport.SetContent(m.renderer.Conversation(&m.conv, m.spinner.View()))
	m.viewport.GotoBottom()
}

func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamEndMsg{}
		}
		return msg
	}
}

func (m model) View() string {
	status := "Enter to send, Esc to quit"
	if m.conv.InFlight {
		status = m.spinner.View() + " waiting for the assistant..."
	} else if m.conv.Usage != nil {
		status = fmt.Sprintf("%d tokens in the last turn. %s", m.conv.Usage.TotalTokens, status)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("codechat"),
		m.viewport.View(),
		statusStyle.Render(status),
		m.textarea.View(),
	)
}

func main() {
	url := flag.String("url", envOr("CODECHAT_URL", "http://localhost:8080"), "codechat server URL")
	apiKey := flag.String("api-key", os.Getenv("CODECHAT_API_KEY"), "API key sent as a bearer token")
	flag.Parse()

	if path := os.Getenv("CODECHAT_CHAT_LOG"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, "opening log file:", err)
			os.Exit(1)
		}
		defer f.Close()
		slog.SetDefault(slog.New(debug.NewHandler(f, "text", slog.LevelDebug)))
	} else {
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var opts []chatview.Option
	if *apiKey != "" {
		opts = append(opts, chatview.WithAPIKey(*apiKey))
	}
	client := chatview.NewClient(*url, opts...)

	p := tea.NewProgram(initialModel(ctx, client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "chat:", err)
		os.Exit(1)
	}
}

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
