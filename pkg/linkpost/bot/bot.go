// Package bot routes inbound updates to the composer and the operator
// commands, and fans them out per conversation.
//
// Commands:
//
//	/start, /help          - usage text
//	/invite                - list recorded invite links (admin)
//	/status                - site watch report (admin)
//	/website               - watched sites plus an "Add Website" button (admin)
//	/delete <url>          - stop watching a site (admin)
//	/cancel                - abandon a pending "Add Website" prompt (admin)
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/invites"
	"github.com/jholhewres/linkpost/pkg/linkpost/sitewatch"
)

// CallbackAddSite is the callback data of the "Add Website" button.
const CallbackAddSite = "site:add"

const (
	msgUnauthorized = "You are not authorized to use this command."
	msgNoInvites    = "No invite links have been created yet."
	msgListFailed   = "Could not list invite links: %v"
	msgSiteWatchOff = "Site watch is disabled."
	msgSitePrompt   = "Please send the website link you want to add:"
	msgSiteAdded    = "Website %s added successfully!"
	msgSiteExists   = "Website %s is already in the list."
	msgSiteRemoved  = "Website %s removed successfully!"
	msgSiteMissing  = "Website %s not found in the list."
	msgDeleteUsage  = "Usage: /delete {website_url}"
	msgOpCancelled  = "Operation cancelled."
)

const helpText = `%s turns any message into a post with link buttons.

1. Send or forward a message here.
2. Use "+" to add a button, then send: <label> <URL>
3. Press "Done ✅" to get the final post.
4. Share it inline, or post it to a group/channel you administer.`

// Composer is the draft engine the bot feeds.
type Composer interface {
	HandleMessage(ctx context.Context, msg *channels.IncomingMessage) error
	HandleCallback(ctx context.Context, cb *channels.CallbackQuery) error
	HandleInlineQuery(ctx context.Context, q *channels.InlineQuery) error
}

// InviteLister lists recorded invite links.
type InviteLister interface {
	ListAll(ctx context.Context) ([]invites.Record, error)
}

// Deps are the bot's collaborators. Sites may be nil when site watch is
// disabled.
type Deps struct {
	Transport channels.Transport
	Composer  Composer
	Invites   InviteLister
	Sites     *sitewatch.Monitor
	AdminID   int64
	Name      string
	Logger    *slog.Logger
}

// Bot routes updates.
type Bot struct {
	transport channels.Transport
	composer  Composer
	invites   InviteLister
	sites     *sitewatch.Monitor
	adminID   int64
	name      string
	logger    *slog.Logger

	mu           sync.Mutex
	awaitingSite bool
}

// New creates a Bot.
func New(deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := deps.Name
	if name == "" {
		name = "linkpost"
	}
	return &Bot{
		transport: deps.Transport,
		composer:  deps.Composer,
		invites:   deps.Invites,
		sites:     deps.Sites,
		adminID:   deps.AdminID,
		name:      name,
		logger:    logger.With("component", "bot"),
	}
}

// Handle implements Handler.
func (b *Bot) Handle(ctx context.Context, u channels.Update) error {
	switch {
	case u.Inline != nil:
		return b.composer.HandleInlineQuery(ctx, u.Inline)
	case u.Callback != nil:
		if u.Callback.Data == CallbackAddSite {
			return b.promptSite(ctx, u.Callback)
		}
		return b.composer.HandleCallback(ctx, u.Callback)
	case u.Message != nil:
		return b.handleMessage(ctx, u.Message)
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *channels.IncomingMessage) error {
	if msg.Command != "" {
		return b.handleCommand(ctx, msg)
	}
	// A pending "Add Website" prompt claims the admin's next private text.
	if msg.Text != "" && msg.ChatType == channels.ChatPrivate && b.isAdmin(msg.From) && b.clearSitePrompt() {
		return b.addSite(ctx, msg)
	}
	return b.composer.HandleMessage(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *channels.IncomingMessage) error {
	b.logger.Debug("command", "command", msg.Command, "chat_id", msg.ChatID, "from", msg.From)

	switch strings.ToLower(msg.Command) {
	case "start", "help":
		if msg.ChatType != channels.ChatPrivate {
			return nil
		}
		return b.send(ctx, msg.ChatID, fmt.Sprintf(helpText, b.name), nil)
	case "invite":
		return b.listInvites(ctx, msg)
	}

	// The remaining commands are silently ignored for everyone but the admin.
	if !b.isAdmin(msg.From) {
		return nil
	}
	switch strings.ToLower(msg.Command) {
	case "status":
		if b.sites == nil {
			return b.send(ctx, msg.ChatID, msgSiteWatchOff, nil)
		}
		return b.send(ctx, msg.ChatID, sitewatch.FormatStatus(b.sites.Statuses()), nil)
	case "website":
		return b.showSites(ctx, msg.ChatID)
	case "delete":
		return b.deleteSite(ctx, msg)
	case "cancel":
		if !b.clearSitePrompt() {
			return nil
		}
		return b.send(ctx, msg.ChatID, msgOpCancelled, nil)
	}
	return nil
}

// listInvites sends every recorded invite link to the admin.
func (b *Bot) listInvites(ctx context.Context, msg *channels.IncomingMessage) error {
	if !b.isAdmin(msg.From) {
		return b.send(ctx, msg.ChatID, msgUnauthorized, nil)
	}
	records, err := b.invites.ListAll(ctx)
	if err != nil {
		b.logger.Warn("listing invite links failed", "error", err)
		return b.send(ctx, msg.ChatID, fmt.Sprintf(msgListFailed, err), nil)
	}
	if len(records) == 0 {
		return b.send(ctx, msg.ChatID, msgNoInvites, nil)
	}
	for _, chunk := range invites.SplitChunks(invites.FormatRecords(records), invites.MaxMessageLength) {
		if err := b.send(ctx, msg.ChatID, chunk, nil); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) showSites(ctx context.Context, chatID int64) error {
	if b.sites == nil {
		return b.send(ctx, chatID, msgSiteWatchOff, nil)
	}
	kb := channels.Keyboard{{{Text: "Add Website", CallbackData: CallbackAddSite}}}
	return b.send(ctx, chatID, sitewatch.FormatSites(b.sites.Sites()), kb)
}

func (b *Bot) deleteSite(ctx context.Context, msg *channels.IncomingMessage) error {
	if b.sites == nil {
		return b.send(ctx, msg.ChatID, msgSiteWatchOff, nil)
	}
	url := strings.TrimSpace(msg.CommandArgs)
	if url == "" {
		return b.send(ctx, msg.ChatID, msgDeleteUsage, nil)
	}
	text := fmt.Sprintf(msgSiteMissing, url)
	if b.sites.Remove(url) {
		text = fmt.Sprintf(msgSiteRemoved, url)
	}
	if err := b.send(ctx, msg.ChatID, text, nil); err != nil {
		return err
	}
	return b.showSites(ctx, msg.ChatID)
}

// promptSite handles the "Add Website" button.
func (b *Bot) promptSite(ctx context.Context, cb *channels.CallbackQuery) error {
	if !b.isAdmin(cb.From) || b.sites == nil {
		return b.transport.AnswerCallback(ctx, cb.ID, "")
	}
	if err := b.transport.AnswerCallback(ctx, cb.ID, ""); err != nil {
		b.logger.Warn("answering callback failed", "error", err)
	}
	b.mu.Lock()
	b.awaitingSite = true
	b.mu.Unlock()
	return b.send(ctx, cb.ChatID, msgSitePrompt, nil)
}

func (b *Bot) addSite(ctx context.Context, msg *channels.IncomingMessage) error {
	url := strings.TrimSpace(msg.Text)
	if b.sites.Add(url) {
		return b.send(ctx, msg.ChatID, fmt.Sprintf(msgSiteAdded, url), nil)
	}
	return b.send(ctx, msg.ChatID, fmt.Sprintf(msgSiteExists, url), nil)
}

// clearSitePrompt drops a pending "Add Website" prompt and reports whether
// there was one.
func (b *Bot) clearSitePrompt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	was := b.awaitingSite
	b.awaitingSite = false
	return was
}

func (b *Bot) isAdmin(userID int64) bool {
	return b.adminID != 0 && userID == b.adminID
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, kb channels.Keyboard) error {
	_, err := b.transport.SendMessage(ctx, &channels.OutgoingMessage{ChatID: chatID, Content: text, Keyboard: kb})
	if err != nil {
		return fmt.Errorf("bot: send to %d: %w", chatID, err)
	}
	return nil
}
