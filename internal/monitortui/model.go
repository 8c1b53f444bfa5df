package monitortui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

// event mirrors internal/monitor's wire format.
type event struct {
	Type string         `json:"type"`
	DPS  map[string]any `json:"dps,omitempty"`
	Err  string         `json:"error,omitempty"`
}

// eventMsg wraps one event (or a connection error) for bubbletea's Update loop.
type eventMsg struct {
	ev  event
	err error
}

type keyMap struct {
	Quit key.Binding
}

func (k keyMap) ShortHelp() []key.Binding { return []key.Binding{k.Quit} }

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// Model is the bubbletea model for the live DP dashboard.
type Model struct {
	conn      *websocket.Conn
	events    chan eventMsg
	connected bool
	lastErr   string
	dps       map[string]any
	width     int
	height    int
}

// New dials wsURL (e.g. "ws://localhost:8090/ws") and returns a Model
// ready to be handed to tea.NewProgram.
func New(wsURL string) (Model, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return Model{}, fmt.Errorf("monitortui: dial %s: %w", wsURL, err)
	}
	return Model{
		conn:      conn,
		events:    make(chan eventMsg, 16),
		connected: true,
		dps:       make(map[string]any),
	}, nil
}

func (m Model) Init() tea.Cmd {
	go m.readLoop()
	return m.waitForEvent
}

func (m Model) readLoop() {
	for {
		_, data, err := m.conn.ReadMessage()
		if err != nil {
			m.events <- eventMsg{err: err}
			return
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		m.events <- eventMsg{ev: ev}
	}
}

func (m Model) waitForEvent() tea.Msg {
	return <-m.events
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			if m.conn != nil {
				_ = m.conn.Close()
			}
			return m, tea.Quit
		}
		return m, nil

	case eventMsg:
		if msg.err != nil {
			m.connected = false
			m.lastErr = msg.err.Error()
			return m, nil
		}
		switch msg.ev.Type {
		case "dps":
			for k, v := range msg.ev.DPS {
				m.dps[k] = v
			}
		case "disconnected":
			m.connected = false
			m.lastErr = msg.ev.Err
		}
		return m, m.waitForEvent
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render("tuyalan monitor"))
	b.WriteString("\n")

	if m.connected {
		b.WriteString(ConnectedStyle.Render("● connected"))
	} else {
		status := "● disconnected"
		if m.lastErr != "" {
			status += ": " + m.lastErr
		}
		b.WriteString(DisconnectedStyle.Render(status))
	}
	b.WriteString("\n\n")

	if len(m.dps) == 0 {
		b.WriteString(SubtitleStyle.Render("waiting for data points..."))
	} else {
		keys := make([]string, 0, len(m.dps))
		for k := range m.dps {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(DPKeyStyle.Render(k))
			b.WriteString(DPValueStyle.Render(fmt.Sprintf("%v", m.dps[k])))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("q: quit"))

	return BorderStyle.Render(b.String())
}
