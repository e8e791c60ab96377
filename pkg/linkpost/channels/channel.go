// Package channels defines the interfaces and types for linkpost messaging
// channels. A channel receives updates (messages, button presses, inline
// queries) and performs the outbound operations the composer needs: copying
// messages with keyboards, sending text, checking membership and issuing
// invite links.
package channels

import (
	"context"
	"errors"
	"time"
)

// Button is a single inline keyboard button. Exactly one of URL,
// CallbackData or SwitchInlineQuery is expected to be set.
type Button struct {
	Text              string
	URL               string
	CallbackData      string
	SwitchInlineQuery string
}

// Keyboard is an inline keyboard: ordered rows of ordered buttons.
type Keyboard [][]Button

// Empty reports whether the keyboard has no buttons at all.
func (k Keyboard) Empty() bool {
	for _, row := range k {
		if len(row) > 0 {
			return false
		}
	}
	return true
}

// MessageRef identifies a delivered message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether the ref points at nothing.
func (r MessageRef) IsZero() bool { return r.ChatID == 0 && r.MessageID == 0 }

// ChatType is the kind of conversation an update came from.
type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

// MemberStatus is a user's standing inside a chat.
type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

// IsAdmin reports whether the status grants administrator or owner standing.
func (s MemberStatus) IsAdmin() bool {
	return s == MemberCreator || s == MemberAdministrator
}

// IncomingMessage represents a message received from a chat.
type IncomingMessage struct {
	// ID is the message identifier inside ChatID.
	ID int

	// ChatID is the conversation the message arrived in.
	ChatID int64

	// ChatType is the conversation kind.
	ChatType ChatType

	// From is the sender user identifier.
	From int64

	// FromName is the sender display name (if available).
	FromName string

	// Text is the text body. Empty for media messages.
	Text string

	// Caption is the media caption (if any).
	Caption string

	// HasMedia is set when the message carries a non-text payload.
	HasMedia bool

	// Forwarded is set when the message is a forward.
	Forwarded bool

	// ForwardFromChat is the origin chat of a forward from a channel or
	// group; zero otherwise.
	ForwardFromChat int64

	// Keyboard holds the URL buttons attached to the message, if any.
	Keyboard Keyboard

	// Command is the bot command without the leading slash ("" if none).
	Command string

	// CommandArgs is the text following the command.
	CommandArgs string

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// Ref returns the message reference.
func (m *IncomingMessage) Ref() MessageRef {
	return MessageRef{ChatID: m.ChatID, MessageID: m.ID}
}

// Body returns the text, falling back to the caption.
func (m *IncomingMessage) Body() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// CallbackQuery is a press on an inline keyboard button.
type CallbackQuery struct {
	ID        string
	From      int64
	ChatID    int64
	ChatType  ChatType
	MessageID int
	Data      string
}

// InlineQuery is an inline-mode query typed by a user.
type InlineQuery struct {
	ID    string
	From  int64
	Query string
}

// Update is one inbound event. Exactly one field is set.
type Update struct {
	Message  *IncomingMessage
	Callback *CallbackQuery
	Inline   *InlineQuery
}

// ConversationID returns the key updates are serialized on: the chat for
// messages and callbacks, the user for inline queries. In private chats the
// two coincide.
func (u Update) ConversationID() int64 {
	switch {
	case u.Message != nil:
		return u.Message.ChatID
	case u.Callback != nil:
		return u.Callback.ChatID
	case u.Inline != nil:
		return u.Inline.From
	}
	return 0
}

// OutgoingMessage represents a text message to be sent through a channel.
type OutgoingMessage struct {
	// ChatID is the destination conversation.
	ChatID int64

	// Content is the text content of the message.
	Content string

	// ReplyTo is the message to reply to (0 for none).
	ReplyTo int

	// Keyboard is an optional inline keyboard.
	Keyboard Keyboard
}

// InlineArticle is a single renderable inline-mode result.
type InlineArticle struct {
	ID          string
	Title       string
	Description string
	Text        string
	Keyboard    Keyboard
}

// Transport is the set of outbound operations the composer relies on.
type Transport interface {
	// CopyMessage delivers a copy of src into chatID with the given keyboard.
	CopyMessage(ctx context.Context, chatID int64, src MessageRef, kb Keyboard) (MessageRef, error)

	// SendMessage sends a text message.
	SendMessage(ctx context.Context, msg *OutgoingMessage) (MessageRef, error)

	// AnswerCallback acknowledges a button press.
	AnswerCallback(ctx context.Context, callbackID, text string) error

	// AnswerInlineQuery answers an inline query.
	AnswerInlineQuery(ctx context.Context, queryID string, results []InlineArticle) error

	// MemberStatus returns the standing of userID inside chatID.
	MemberStatus(ctx context.Context, chatID, userID int64) (MemberStatus, error)

	// CreateInviteLink issues a new invite link for chatID.
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)

	// ChatTitle resolves the display title of chatID.
	ChatTitle(ctx context.Context, chatID int64) (string, error)
}

// Channel is a connected Transport that also produces updates.
type Channel interface {
	Transport

	// Name returns the channel identifier (e.g. "telegram").
	Name() string

	// Connect establishes the connection to the messaging platform.
	Connect(ctx context.Context) error

	// Disconnect gracefully closes the connection.
	Disconnect() error

	// Receive returns a Go channel that emits incoming updates.
	Receive() <-chan Update

	// IsConnected returns true if the channel is connected.
	IsConnected() bool

	// Health returns the channel health status.
	Health() HealthStatus
}

// HealthStatus represents the health state of a channel.
type HealthStatus struct {
	Connected     bool
	LastMessageAt time.Time
	ErrorCount    int
	Details       map[string]any
}

// Errors.
var (
	ErrChannelDisconnected = errors.New("channel is not connected")
	ErrSendFailed          = errors.New("failed to send message")
	ErrConnectionFailed    = errors.New("failed to connect to channel")
)
