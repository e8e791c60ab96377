// Package composer drives a draft from capture to distribution. It handles
// the operator's free-form replies, the structured keyboard actions and the
// inline share queries, calling out to the transport and the invite cache.
//
// The composer is not safe for concurrent use on the same conversation;
// the dispatcher serializes each conversation's updates.
package composer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/draft"
)

// Store is the draft storage the composer works against.
type Store interface {
	Create(owner int64, content draft.Content, rows []draft.Row) *draft.Draft
	Get(id string) (*draft.Draft, bool)
	Save(d *draft.Draft) error
	Remove(id string)
	Awaiting(owner int64) (*draft.Draft, bool)
}

// InviteRecorder records the invite link of a chat a post was delivered to.
type InviteRecorder interface {
	Upsert(ctx context.Context, chatID int64, title, link string) error
}

// Config holds composer settings.
type Config struct {
	// AllowedSchemes are the URL schemes buttons may use.
	AllowedSchemes []string `yaml:"allowed_schemes" env:"LINKPOST_ALLOWED_SCHEMES" envSeparator:","`
}

// DefaultConfig returns the default composer settings.
func DefaultConfig() Config {
	return Config{AllowedSchemes: append([]string(nil), draft.DefaultSchemes...)}
}

// Composer is the composition state machine plus the distribution protocol.
type Composer struct {
	store     Store
	transport channels.Transport
	invites   InviteRecorder
	schemes   []string
	logger    *slog.Logger

	newResultID func() string
}

// New creates a Composer.
func New(store Store, transport channels.Transport, invites InviteRecorder, cfg Config, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	schemes := cfg.AllowedSchemes
	if len(schemes) == 0 {
		schemes = draft.DefaultSchemes
	}
	return &Composer{
		store:       store,
		transport:   transport,
		invites:     invites,
		schemes:     schemes,
		logger:      logger.With("component", "composer"),
		newResultID: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// HandleMessage processes a message from a private conversation. A pending
// prompt claims the message; otherwise it starts a new draft.
func (c *Composer) HandleMessage(ctx context.Context, msg *channels.IncomingMessage) error {
	if msg.ChatType != channels.ChatPrivate {
		return nil
	}

	if d, ok := c.store.Awaiting(msg.ChatID); ok {
		switch d.Pending.Kind {
		case draft.PromptButtonText:
			return c.addButton(ctx, d, msg)
		case draft.PromptDestination:
			return c.captureDestination(ctx, d, msg)
		}
	}
	return c.createDraft(ctx, msg)
}

// HandleCallback processes a draft keyboard action.
func (c *Composer) HandleCallback(ctx context.Context, cb *channels.CallbackQuery) error {
	if cb.ChatType != channels.ChatPrivate {
		return nil
	}

	action, err := draft.ParseAction(cb.Data)
	if err != nil {
		c.logger.Debug("ignoring callback", "data", cb.Data, "error", err)
		return c.transport.AnswerCallback(ctx, cb.ID, "")
	}

	d, ok := c.store.Get(action.DraftID)
	if !ok || d.Owner != cb.ChatID {
		return c.transport.AnswerCallback(ctx, cb.ID, msgSessionNotFound)
	}
	if err := c.transport.AnswerCallback(ctx, cb.ID, ""); err != nil {
		c.logger.Warn("answering callback failed", "error", err)
	}

	switch action.Kind {
	case draft.ActionAddToRow:
		return c.promptButton(ctx, d, action.Row)
	case draft.ActionNewRow:
		return c.promptButton(ctx, d, len(d.Grid))
	case draft.ActionFinish:
		return c.finish(ctx, d)
	case draft.ActionPost:
		return c.promptDestination(ctx, d)
	case draft.ActionConfirmPost:
		return c.confirm(ctx, d, action.Destination, cb.From)
	case draft.ActionDeclinePost:
		return c.decline(ctx, d)
	}
	return nil
}

// HandleInlineQuery resolves "share_<draftID>" to the finished post. Only
// the draft owner can share it.
func (c *Composer) HandleInlineQuery(ctx context.Context, q *channels.InlineQuery) error {
	if !strings.HasPrefix(q.Query, draft.SharePrefix) {
		return nil
	}
	id := strings.TrimPrefix(q.Query, draft.SharePrefix)
	d, ok := c.store.Get(id)
	if !ok || d.Owner != q.From {
		return nil
	}

	text := d.Content.Text
	if text == "" {
		text = shareNoText
	}
	return c.transport.AnswerInlineQuery(ctx, q.ID, []channels.InlineArticle{{
		ID:          c.newResultID(),
		Title:       shareTitle,
		Description: shareDescription,
		Text:        text,
		Keyboard:    draft.FinalKeyboard(d),
	}})
}

// reply sends a text notice to chatID.
func (c *Composer) reply(ctx context.Context, chatID int64, text string, kb channels.Keyboard) error {
	_, err := c.transport.SendMessage(ctx, &channels.OutgoingMessage{ChatID: chatID, Content: text, Keyboard: kb})
	if err != nil {
		return fmt.Errorf("composer: notify %d: %w", chatID, err)
	}
	return nil
}

// save commits d. A draft removed in the meantime is not an error.
func (c *Composer) save(d *draft.Draft) error {
	if err := c.store.Save(d); err != nil {
		if errors.Is(err, draft.ErrNotFound) {
			c.logger.Debug("draft vanished before save", "draft", d.ID)
			return nil
		}
		return err
	}
	return nil
}
