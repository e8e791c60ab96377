// Package telegram implements the Telegram channel for linkpost on top of
// the go-telegram-bot-api client.
//
// Features:
//   - Long polling for updates (getUpdates) with exponential backoff
//   - Messages, callback queries and inline queries
//   - copyMessage with inline keyboards
//   - Chat member status, chat info and invite link creation
package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
)

// Config holds Telegram channel configuration.
type Config struct {
	// Token is the Telegram Bot API token (from @BotFather).
	Token string `yaml:"token" env:"LINKPOST_TELEGRAM_TOKEN"`

	// APIEndpoint overrides the Bot API endpoint format
	// (default "https://api.telegram.org/bot%s/%s").
	APIEndpoint string `yaml:"api_endpoint" env:"LINKPOST_TELEGRAM_API_ENDPOINT"`

	// PollTimeout is the long-polling timeout in seconds.
	PollTimeout int `yaml:"poll_timeout" env:"LINKPOST_TELEGRAM_POLL_TIMEOUT"`

	// Debug enables request logging in the Bot API client.
	Debug bool `yaml:"debug" env:"LINKPOST_TELEGRAM_DEBUG"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		APIEndpoint: tgbotapi.APIEndpoint,
		PollTimeout: 30,
	}
}

// allowedUpdates are the update kinds the bot subscribes to.
var allowedUpdates = []string{"message", "callback_query", "inline_query"}

// Telegram implements channels.Channel.
type Telegram struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	api *tgbotapi.BotAPI

	// updates is the channel for incoming updates handed to the dispatcher.
	updates chan channels.Update

	connected  atomic.Bool
	lastMsg    atomic.Value // time.Time
	errorCount atomic.Int64

	// offset is the last processed update ID + 1.
	offset int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// New creates a new Telegram channel instance.
func New(cfg Config, logger *slog.Logger) *Telegram {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30
	}
	return &Telegram{
		cfg:     cfg,
		logger:  logger.With("component", "telegram"),
		client:  &http.Client{Timeout: time.Duration(cfg.PollTimeout+30) * time.Second},
		updates: make(chan channels.Update, 256),
	}
}

// Name returns "telegram".
func (t *Telegram) Name() string { return "telegram" }

// Connect verifies the token and starts the long-polling loop.
func (t *Telegram) Connect(ctx context.Context) error {
	if t.cfg.Token == "" {
		return fmt.Errorf("telegram: bot token is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Prevent double-connect goroutine leak.
	if t.connected.Load() {
		return nil
	}

	_ = tgbotapi.SetLogger(botLogger{t.logger})

	api, err := tgbotapi.NewBotAPIWithClient(t.cfg.Token, t.cfg.APIEndpoint, t.client)
	if err != nil {
		return fmt.Errorf("telegram: verifying token: %w: %w", channels.ErrConnectionFailed, err)
	}
	api.Debug = t.cfg.Debug
	t.api = api

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.logger.Info("telegram: connected", "bot", api.Self.UserName, "id", api.Self.ID)
	t.connected.Store(true)

	t.wg.Add(1)
	go t.pollLoop()

	return nil
}

// Disconnect stops the polling loop. An in-flight long poll is allowed to
// finish; its updates are discarded.
func (t *Telegram) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	t.connected.Store(false)
	t.logger.Info("telegram: disconnected")
	return nil
}

// Wait blocks until the polling loop has exited.
func (t *Telegram) Wait() { t.wg.Wait() }

// Receive returns the incoming updates channel.
func (t *Telegram) Receive() <-chan channels.Update { return t.updates }

// IsConnected returns true if the bot is connected.
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

// Health returns the channel health status.
func (t *Telegram) Health() channels.HealthStatus {
	var lastAt time.Time
	if v := t.lastMsg.Load(); v != nil {
		lastAt = v.(time.Time)
	}
	details := map[string]any{}
	if t.api != nil {
		details["bot"] = t.api.Self.UserName
	}
	return channels.HealthStatus{
		Connected:     t.connected.Load(),
		LastMessageAt: lastAt,
		ErrorCount:    int(t.errorCount.Load()),
		Details:       details,
	}
}

// ---------- Transport ----------

// CopyMessage copies src into chatID with kb attached.
func (t *Telegram) CopyMessage(ctx context.Context, chatID int64, src channels.MessageRef, kb channels.Keyboard) (channels.MessageRef, error) {
	if err := t.ready(ctx); err != nil {
		return channels.MessageRef{}, err
	}
	cfg := tgbotapi.NewCopyMessage(chatID, src.ChatID, src.MessageID)
	if markup := toMarkup(kb); markup != nil {
		cfg.ReplyMarkup = *markup
	}
	id, err := t.api.CopyMessage(cfg)
	if err != nil {
		return channels.MessageRef{}, fmt.Errorf("telegram: copyMessage: %w: %w", channels.ErrSendFailed, err)
	}
	return channels.MessageRef{ChatID: chatID, MessageID: id.MessageID}, nil
}

// SendMessage sends a plain text message.
func (t *Telegram) SendMessage(ctx context.Context, msg *channels.OutgoingMessage) (channels.MessageRef, error) {
	if err := t.ready(ctx); err != nil {
		return channels.MessageRef{}, err
	}
	cfg := tgbotapi.NewMessage(msg.ChatID, msg.Content)
	if msg.ReplyTo != 0 {
		cfg.ReplyToMessageID = msg.ReplyTo
	}
	if markup := toMarkup(msg.Keyboard); markup != nil {
		cfg.ReplyMarkup = *markup
	}
	sent, err := t.api.Send(cfg)
	if err != nil {
		return channels.MessageRef{}, fmt.Errorf("telegram: sendMessage: %w: %w", channels.ErrSendFailed, err)
	}
	return channels.MessageRef{ChatID: msg.ChatID, MessageID: sent.MessageID}, nil
}

// AnswerCallback acknowledges a callback query.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram: answerCallbackQuery: %w", err)
	}
	return nil
}

// AnswerInlineQuery answers an inline query without caching.
func (t *Telegram) AnswerInlineQuery(ctx context.Context, queryID string, results []channels.InlineArticle) error {
	if err := t.ready(ctx); err != nil {
		return err
	}
	items := make([]interface{}, 0, len(results))
	for _, r := range results {
		article := tgbotapi.NewInlineQueryResultArticle(r.ID, r.Title, r.Text)
		article.Description = r.Description
		article.ReplyMarkup = toMarkup(r.Keyboard)
		items = append(items, article)
	}
	cfg := tgbotapi.InlineConfig{
		InlineQueryID: queryID,
		Results:       items,
		CacheTime:     0,
		IsPersonal:    true,
	}
	if _, err := t.api.Request(cfg); err != nil {
		return fmt.Errorf("telegram: answerInlineQuery: %w", err)
	}
	return nil
}

// MemberStatus returns userID's status inside chatID.
func (t *Telegram) MemberStatus(ctx context.Context, chatID, userID int64) (channels.MemberStatus, error) {
	if err := t.ready(ctx); err != nil {
		return "", err
	}
	member, err := t.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		return "", fmt.Errorf("telegram: getChatMember: %w", err)
	}
	return channels.MemberStatus(member.Status), nil
}

// CreateInviteLink creates a new primary-less invite link for chatID.
func (t *Telegram) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	if err := t.ready(ctx); err != nil {
		return "", err
	}
	resp, err := t.api.Request(tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return "", fmt.Errorf("telegram: createChatInviteLink: %w", err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", fmt.Errorf("telegram: parsing invite link: %w", err)
	}
	if link.InviteLink == "" {
		return "", fmt.Errorf("telegram: createChatInviteLink: empty link")
	}
	return link.InviteLink, nil
}

// ChatTitle resolves the title of chatID.
func (t *Telegram) ChatTitle(ctx context.Context, chatID int64) (string, error) {
	if err := t.ready(ctx); err != nil {
		return "", err
	}
	chat, err := t.api.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
	})
	if err != nil {
		return "", fmt.Errorf("telegram: getChat: %w", err)
	}
	return chat.Title, nil
}

// ready fails fast when the channel is down or the caller gave up.
func (t *Telegram) ready(ctx context.Context) error {
	if !t.connected.Load() || t.api == nil {
		return channels.ErrChannelDisconnected
	}
	return ctx.Err()
}

// ---------- Polling ----------

// pollLoop runs the getUpdates long-polling loop.
func (t *Telegram) pollLoop() {
	defer t.wg.Done()
	t.logger.Info("telegram: polling started")
	backoff := time.Second

	for {
		select {
		case <-t.ctx.Done():
			t.logger.Info("telegram: polling stopped")
			return
		default:
		}

		cfg := tgbotapi.NewUpdate(t.offset)
		cfg.Limit = 100
		cfg.Timeout = t.cfg.PollTimeout
		cfg.AllowedUpdates = allowedUpdates

		updates, err := t.api.GetUpdates(cfg)
		if err != nil {
			t.errorCount.Add(1)
			t.logger.Warn("telegram: getUpdates error", "error", err, "backoff", backoff)
			select {
			case <-t.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		t.errorCount.Store(0)

		for _, u := range updates {
			if u.UpdateID >= t.offset {
				t.offset = u.UpdateID + 1
			}
			upd, ok := convertUpdate(u)
			if !ok {
				continue
			}
			t.lastMsg.Store(time.Now())
			select {
			case t.updates <- upd:
			case <-t.ctx.Done():
				return
			}
		}
	}
}

// ---------- Conversion ----------

// convertUpdate maps a Bot API update to a channels.Update. Unsupported
// update kinds are reported with ok=false.
func convertUpdate(u tgbotapi.Update) (channels.Update, bool) {
	switch {
	case u.Message != nil:
		return channels.Update{Message: convertMessage(u.Message)}, true
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		out := &channels.CallbackQuery{ID: cq.ID, Data: cq.Data}
		if cq.From != nil {
			out.From = cq.From.ID
		}
		if cq.Message != nil {
			out.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				out.ChatID = cq.Message.Chat.ID
				out.ChatType = channels.ChatType(cq.Message.Chat.Type)
			}
		} else {
			// Presses on inline-mode messages carry no chat; key them on the user.
			out.ChatID = out.From
		}
		return channels.Update{Callback: out}, true
	case u.InlineQuery != nil:
		iq := u.InlineQuery
		out := &channels.InlineQuery{ID: iq.ID, Query: iq.Query}
		if iq.From != nil {
			out.From = iq.From.ID
		}
		return channels.Update{Inline: out}, true
	}
	return channels.Update{}, false
}

func convertMessage(m *tgbotapi.Message) *channels.IncomingMessage {
	out := &channels.IncomingMessage{
		ID:        m.MessageID,
		Text:      m.Text,
		Caption:   m.Caption,
		HasMedia:  m.Text == "",
		Forwarded: m.ForwardDate != 0,
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if m.Chat != nil {
		out.ChatID = m.Chat.ID
		out.ChatType = channels.ChatType(m.Chat.Type)
	}
	if m.From != nil {
		out.From = m.From.ID
		out.FromName = m.From.FirstName
		if m.From.LastName != "" {
			out.FromName += " " + m.From.LastName
		}
		if out.FromName == "" {
			out.FromName = m.From.UserName
		}
	}
	if m.ForwardFromChat != nil {
		out.ForwardFromChat = m.ForwardFromChat.ID
	}
	if m.ReplyMarkup != nil {
		out.Keyboard = urlButtons(m.ReplyMarkup)
	}
	if m.IsCommand() {
		out.Command = m.Command()
		out.CommandArgs = m.CommandArguments()
	}
	return out
}

// urlButtons keeps only the URL buttons of a markup, dropping rows that end
// up empty.
func urlButtons(markup *tgbotapi.InlineKeyboardMarkup) channels.Keyboard {
	var kb channels.Keyboard
	for _, row := range markup.InlineKeyboard {
		var out []channels.Button
		for _, b := range row {
			if b.URL != nil && *b.URL != "" {
				out = append(out, channels.Button{Text: b.Text, URL: *b.URL})
			}
		}
		if len(out) > 0 {
			kb = append(kb, out)
		}
	}
	return kb
}

// toMarkup converts a keyboard to Bot API markup; nil when empty.
func toMarkup(kb channels.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if kb.Empty() {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		if len(row) == 0 {
			continue
		}
		out := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			switch {
			case b.URL != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
			case b.SwitchInlineQuery != "":
				out = append(out, tgbotapi.NewInlineKeyboardButtonSwitch(b.Text, b.SwitchInlineQuery))
			default:
				data := b.CallbackData
				if data == "" {
					data = "noop" // Telegram requires callback_data or url
				}
				out = append(out, tgbotapi.NewInlineKeyboardButtonData(b.Text, data))
			}
		}
		rows = append(rows, out)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

// botLogger routes the client library's logging into slog at debug level.
type botLogger struct{ l *slog.Logger }

func (b botLogger) Println(v ...interface{}) { b.l.Debug(fmt.Sprint(v...)) }

func (b botLogger) Printf(format string, v ...interface{}) { b.l.Debug(fmt.Sprintf(format, v...)) }

// Compile-time interface verification.
var _ channels.Channel = (*Telegram)(nil)
