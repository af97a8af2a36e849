// Package tui renders a chat session in the terminal. It observes the
// session and turns key presses into session intents; it holds no chat state
// of its own beyond what the text inputs are showing.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/roomchat/roomchat/internal/model"
	"github.com/roomchat/roomchat/internal/session"
)

const (
	noticeTTL     = 4 * time.Second
	maxNotices    = 3
	sidebarWidth  = 30
	minChatWidth  = 30
	minChatHeight = 5
)

// Chat is the session surface the UI drives. *session.Client implements it.
type Chat interface {
	Session() model.Session
	Phase() model.Phase
	Rooms() model.RoomSet
	Messages() []model.Message
	Typing() model.TypingStatus
	Notifications() []session.Notification
	ScrollSignal() <-chan struct{}
	Changes() <-chan struct{}
	Done() <-chan struct{}

	SetUsername(name string)
	SelectRoom(room model.Room) error
	SetRecipient(recipient string)
	EditDraft(text string)
	JoinRoom() bool
	SendMessage() bool
	LeaveRoom()
	Close()
}

type focus int

const (
	focusUsername focus = iota
	focusDraft
	focusRecipient
)

type changedMsg struct{}

type closedMsg struct{}

type expireNoticesMsg struct{}

// Model is the bubbletea model of the chat screen.
type Model struct {
	chat Chat
	now  func() time.Time

	usernameInput  textinput.Model
	draftInput     textinput.Model
	recipientInput textinput.Model
	messages       viewport.Model
	focus          focus

	notices []session.Notification
	err     error
	width   int
	height  int
}

// New creates the UI model for chat.
func New(chat Chat) Model {
	usernameInput := textinput.New()
	usernameInput.Placeholder = "Enter username"
	usernameInput.CharLimit = 32
	usernameInput.Width = sidebarWidth - 6
	usernameInput.Focus()

	draftInput := textinput.New()
	draftInput.Placeholder = "Type your message..."
	draftInput.CharLimit = 1000

	recipientInput := textinput.New()
	recipientInput.Placeholder = "Enter recipient username (optional)"
	recipientInput.CharLimit = 32

	return Model{
		chat:           chat,
		now:            time.Now,
		usernameInput:  usernameInput,
		draftInput:     draftInput,
		recipientInput: recipientInput,
		messages:       viewport.New(60, 15),
		focus:          focusUsername,
	}
}

// waitForChange blocks until the session changes or is torn down.
func waitForChange(chat Chat) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-chat.Changes():
			return changedMsg{}
		case <-chat.Done():
			return closedMsg{}
		}
	}
}

func expireNotices() tea.Cmd {
	return tea.Tick(noticeTTL, func(time.Time) tea.Msg {
		return expireNoticesMsg{}
	})
}

// Init starts watching the session.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForChange(m.chat))
}

// Update handles key presses, window resizes and session changes.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := m.width - sidebarWidth - 6
		if chatWidth < minChatWidth {
			chatWidth = minChatWidth
		}
		chatHeight := m.height - 10
		if chatHeight < minChatHeight {
			chatHeight = minChatHeight
		}
		m.messages.Width = chatWidth
		m.messages.Height = chatHeight
		m.draftInput.Width = chatWidth - 2
		m.recipientInput.Width = chatWidth - 2
		m.refreshMessages(true)
		return m, nil

	case changedMsg:
		scrolled := false
		select {
		case <-m.chat.ScrollSignal():
			scrolled = true
		default:
		}
		m.refreshMessages(scrolled)

		var cmds []tea.Cmd
		if fresh := m.chat.Notifications(); len(fresh) > 0 {
			m.notices = append(m.notices, fresh...)
			if len(m.notices) > maxNotices {
				m.notices = m.notices[len(m.notices)-maxNotices:]
			}
			cmds = append(cmds, expireNotices())
		}
		m.syncInputs()
		cmds = append(cmds, waitForChange(m.chat))
		return m, tea.Batch(cmds...)

	case expireNoticesMsg:
		now := m.now()
		var kept []session.Notification
		for _, n := range m.notices {
			if now.Sub(n.At) < noticeTTL {
				kept = append(kept, n)
			}
		}
		m.notices = kept
		return m, nil

	case closedMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	joined := m.chat.Phase() == model.PhaseJoined

	switch msg.String() {
	case "ctrl+c":
		m.chat.Close()
		return m, tea.Quit

	case "tab":
		cmd := m.setFocus(m.nextFocus(joined, 1))
		return m, cmd

	case "shift+tab":
		cmd := m.setFocus(m.nextFocus(joined, -1))
		return m, cmd

	case "ctrl+r":
		rooms := m.chat.Rooms()
		if err := m.chat.SelectRoom(rooms.Next(m.chat.Session().Room)); err != nil {
			m.err = err
		}
		return m, nil

	case "esc":
		if joined {
			m.chat.LeaveRoom()
			m.syncInputs()
			cmd := m.setFocus(focusUsername)
			return m, cmd
		}
		return m, nil

	case "enter":
		m.err = nil
		switch m.focus {
		case focusUsername:
			if m.chat.JoinRoom() {
				m.syncInputs()
				cmd := m.setFocus(focusDraft)
				return m, cmd
			}
		case focusDraft, focusRecipient:
			if m.chat.SendMessage() {
				m.syncInputs()
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focus {
	case focusUsername:
		m.usernameInput, cmd = m.usernameInput.Update(msg)
		m.chat.SetUsername(m.usernameInput.Value())
	case focusDraft:
		m.draftInput, cmd = m.draftInput.Update(msg)
		if v := m.draftInput.Value(); v != m.chat.Session().Draft {
			m.chat.EditDraft(v)
		}
	case focusRecipient:
		m.recipientInput, cmd = m.recipientInput.Update(msg)
		m.chat.SetRecipient(m.recipientInput.Value())
	}
	m.syncInputs()
	return m, cmd
}

func (m Model) nextFocus(joined bool, step int) focus {
	if !joined {
		return focusUsername
	}
	n := int(focusRecipient) + 1
	return focus(((int(m.focus)+step)%n + n) % n)
}

func (m *Model) setFocus(f focus) tea.Cmd {
	m.focus = f
	m.usernameInput.Blur()
	m.draftInput.Blur()
	m.recipientInput.Blur()

	switch f {
	case focusDraft:
		return m.draftInput.Focus()
	case focusRecipient:
		return m.recipientInput.Focus()
	default:
		return m.usernameInput.Focus()
	}
}

// syncInputs shows the session's fields in the text inputs.
func (m *Model) syncInputs() {
	s := m.chat.Session()
	if m.usernameInput.Value() != s.Username {
		m.usernameInput.SetValue(s.Username)
	}
	if m.draftInput.Value() != s.Draft {
		m.draftInput.SetValue(s.Draft)
	}
	if m.recipientInput.Value() != s.Recipient {
		m.recipientInput.SetValue(s.Recipient)
	}
	if m.focus != focusUsername && m.chat.Phase() != model.PhaseJoined {
		m.setFocus(focusUsername)
	}
}

func (m *Model) refreshMessages(gotoBottom bool) {
	m.messages.SetContent(renderMessages(m.chat.Messages()))
	if gotoBottom {
		m.messages.GotoBottom()
	}
}

func renderMessages(messages []model.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		sender := senderStyle.Render(msg.Sender)
		if msg.IsPrivate() {
			sender += privateStyle.Render(" → " + msg.Recipient + " (private)")
		}
		fmt.Fprintf(&b, "%s: %s\n", sender, msg.Text)
		if ts := formatTimestamp(msg.Time); ts != "" {
			b.WriteString(mutedStyle.Render(ts) + "\n")
		}
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("Mon Jan 2 2006 15:04:05")
}

// View renders the form on the left and, once joined, the room on the right.
func (m Model) View() string {
	s := m.chat.Session()
	phase := m.chat.Phase()

	var side strings.Builder
	side.WriteString(labelStyle.Render("Username") + "\n")
	side.WriteString(m.usernameInput.View() + "\n\n")
	side.WriteString(labelStyle.Render("Room") + "\n")
	for _, room := range m.chat.Rooms().Rooms() {
		if room == s.Room {
			side.WriteString(selectedRoomStyle.Render("> "+room.Label()) + "\n")
		} else {
			side.WriteString("  " + room.Label() + "\n")
		}
	}
	side.WriteString("\n" + mutedStyle.Render("ctrl+r room · enter join") + "\n")
	side.WriteString(mutedStyle.Render("status: "+phase.String()) + "\n")
	if s.JoinedAs != "" && phase == model.PhaseJoined {
		side.WriteString(mutedStyle.Render("as "+s.JoinedAs) + "\n")
	}

	left := sidebarStyle.Width(sidebarWidth).Render(side.String())

	var header strings.Builder
	header.WriteString(titleStyle.Render("Chat App") + "\n")
	for _, n := range m.notices {
		header.WriteString(noticeStyle.Render("✓ "+n.Text) + "\n")
	}
	if m.err != nil {
		header.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	}

	if phase != model.PhaseJoined {
		return header.String() + left
	}

	var chat strings.Builder
	chat.WriteString(m.messages.View() + "\n")
	chat.WriteString(m.draftInput.View() + "\n")
	chat.WriteString(typingStyle.Render(m.chat.Typing().String()) + "\n\n")
	chat.WriteString(m.recipientInput.View() + "\n")
	chat.WriteString(mutedStyle.Render("enter send · tab switch field · esc leave room · ctrl+c quit"))

	right := chatWindowStyle.Render(chat.String())
	return header.String() + lipgloss.JoinHorizontal(lipgloss.Top, left, right)
}
