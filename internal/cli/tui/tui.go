package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tchandler/eventworks/internal/cli/client"
	"github.com/tchandler/eventworks/pkg/eventworks"
)

const defaultChannelName = eventworks.DefaultChannelName

const (
	maxLines        = 500
	refreshInterval = 5 * time.Second
)

// API is the subset of the REST client the console needs.
type API interface {
	Publish(ctx context.Context, channel, topic string, payload json.RawMessage) (*client.Event, error)
	ListChannels(ctx context.Context) ([]client.ChannelStats, error)
	Watch(ctx context.Context, channel, topic string, handler func(client.Event)) error
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	statusStyle = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	topicStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	frameStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8"))
)

type eventMsg struct {
	event client.Event
}

type publishedMsg struct {
	event *client.Event
}

type subscribersMsg struct {
	count int
}

type errMsg struct {
	err error
}

type streamErrMsg struct {
	err error
}

type eventsClosedMsg struct{}

type tickMsg struct{}

// Run launches the live console for channel/topic: incoming events scroll in
// the main pane and the input line publishes JSON payloads to the same topic.
func Run(ctx context.Context, api API, channel, topic string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(ctx, cancel, api, channel, topic)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

type model struct {
	ctx         context.Context
	cancel      context.CancelFunc
	api         API
	channel     string
	topic       string
	streamCh    chan tea.Msg
	lines       []string
	subscribers int
	input       textinput.Model
	view        viewport.Model
	ready       bool
	err         error
	streamEOF   bool
}

func newModel(ctx context.Context, cancel context.CancelFunc, api API, channel, topic string) model {
	input := textinput.New()
	input.Placeholder = `{"payload": "json"}  (enter to publish)`
	input.Prompt = "> "
	input.CharLimit = 4096
	input.Focus()

	return model{
		ctx:      ctx,
		cancel:   cancel,
		api:      api,
		channel:  channel,
		topic:    topic,
		streamCh: make(chan tea.Msg, 64),
		input:    input,
		view:     viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		watchEventsCmd(m.ctx, m.api, m.channel, m.topic, m.streamCh),
		waitEventCmd(m.streamCh),
		fetchSubscribersCmd(m.ctx, m.api, m.channel, m.topic),
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel()
			return m, tea.Quit
		case tea.KeyEnter:
			raw := strings.TrimSpace(m.input.Value())
			var payload json.RawMessage
			if raw != "" {
				if !json.Valid([]byte(raw)) {
					m.err = fmt.Errorf("payload is not valid JSON")
					return m, nil
				}
				payload = json.RawMessage(raw)
			}
			m.input.SetValue("")
			m.err = nil
			return m, publishCmd(m.ctx, m.api, m.channel, m.topic, payload)
		}
	case tea.WindowSizeMsg:
		m.view.Width = msg.Width - 2
		m.view.Height = max(msg.Height-6, 3)
		m.input.Width = msg.Width - 4
		m.ready = true
		m.view.SetContent(strings.Join(m.lines, "\n"))
	case eventMsg:
		m.appendLine(formatEvent(msg.event))
		return m, waitEventCmd(m.streamCh)
	case streamErrMsg:
		m.err = msg.err
		return m, waitEventCmd(m.streamCh)
	case publishedMsg:
		return m, nil
	case subscribersMsg:
		m.subscribers = msg.count
		return m, nil
	case errMsg:
		m.err = msg.err
		return m, nil
	case eventsClosedMsg:
		m.streamEOF = true
		return m, nil
	case tickMsg:
		return m, tea.Batch(tickCmd(), fetchSubscribersCmd(m.ctx, m.api, m.channel, m.topic))
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLines {
		m.lines = m.lines[len(m.lines)-maxLines:]
	}
	m.view.SetContent(strings.Join(m.lines, "\n"))
	m.view.GotoBottom()
}

func (m model) View() string {
	channel := m.channel
	if channel == "" {
		channel = "-"
	}
	header := titleStyle.Render(fmt.Sprintf("eventworks :: %s/%s", channel, m.topic)) +
		statusStyle.Render(fmt.Sprintf("  %d subscriber(s)  esc to quit", m.subscribers))

	body := m.view.View()
	if len(m.lines) == 0 {
		body = statusStyle.Render("waiting for events...")
	}

	footer := m.input.View()
	switch {
	case m.err != nil:
		footer += "\n" + errorStyle.Render("error: "+m.err.Error())
	case m.streamEOF:
		footer += "\n" + errorStyle.Render("event stream closed")
	}

	return header + "\n" + frameStyle.Render(body) + "\n" + footer
}

func formatEvent(ev client.Event) string {
	payload := string(ev.Payload)
	if payload == "" {
		payload = statusStyle.Render("(no payload)")
	}
	return fmt.Sprintf("%s %s %s", statusStyle.Render(ev.Timestamp.Format("15:04:05.000")), topicStyle.Render(ev.Topic), payload)
}

func publishCmd(ctx context.Context, api API, channel, topic string, payload json.RawMessage) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		event, err := api.Publish(ctx, channel, topic, payload)
		if err != nil {
			return errMsg{err: err}
		}
		return publishedMsg{event: event}
	}
}

func fetchSubscribersCmd(ctx context.Context, api API, channel, topic string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		channels, err := api.ListChannels(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return subscribersMsg{count: subscriberCount(channels, channel, topic)}
	}
}

func subscriberCount(channels []client.ChannelStats, channel, topic string) int {
	if channel == "" {
		channel = defaultChannelName
	}
	for _, ch := range channels {
		if ch.Name != channel {
			continue
		}
		for _, t := range ch.Topics {
			if t.Name == topic {
				return t.Subscriptions
			}
		}
	}
	return 0
}

func watchEventsCmd(ctx context.Context, api API, channel, topic string, ch chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			defer close(ch)
			err := api.Watch(ctx, channel, topic, func(ev client.Event) {
				select {
				case ch <- eventMsg{event: ev}:
				case <-ctx.Done():
				}
			})
			if err != nil && ctx.Err() == nil {
				select {
				case ch <- streamErrMsg{err: err}:
				default:
				}
			}
		}()
		return nil
	}
}

func waitEventCmd(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return msg
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return tickMsg{} })
}
