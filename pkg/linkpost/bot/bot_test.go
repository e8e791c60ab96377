package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/invites"
	"github.com/jholhewres/linkpost/pkg/linkpost/sitewatch"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	admin    int64 = 1000
	stranger int64 = 2000
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []channels.OutgoingMessage
	answers []string
}

func (f *fakeTransport) CopyMessage(context.Context, int64, channels.MessageRef, channels.Keyboard) (channels.MessageRef, error) {
	return channels.MessageRef{}, errors.New("not used")
}

func (f *fakeTransport) SendMessage(_ context.Context, msg *channels.OutgoingMessage) (channels.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *msg)
	return channels.MessageRef{ChatID: msg.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeTransport) AnswerInlineQuery(context.Context, string, []channels.InlineArticle) error {
	return nil
}

func (f *fakeTransport) MemberStatus(context.Context, int64, int64) (channels.MemberStatus, error) {
	return channels.MemberLeft, nil
}

func (f *fakeTransport) CreateInviteLink(context.Context, int64) (string, error) { return "", nil }
func (f *fakeTransport) ChatTitle(context.Context, int64) (string, error)        { return "", nil }

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Content
	}
	return out
}

func (f *fakeTransport) last() channels.OutgoingMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fakeComposer struct {
	messages  []*channels.IncomingMessage
	callbacks []*channels.CallbackQuery
	inline    []*channels.InlineQuery
}

func (c *fakeComposer) HandleMessage(_ context.Context, msg *channels.IncomingMessage) error {
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeComposer) HandleCallback(_ context.Context, cb *channels.CallbackQuery) error {
	c.callbacks = append(c.callbacks, cb)
	return nil
}

func (c *fakeComposer) HandleInlineQuery(_ context.Context, q *channels.InlineQuery) error {
	c.inline = append(c.inline, q)
	return nil
}

type harness struct {
	bot       *Bot
	transport *fakeTransport
	composer  *fakeComposer
	store     *invites.MemoryStore
	sites     *sitewatch.Monitor
}

func newHarness(t *testing.T, withSites bool) *harness {
	t.Helper()
	h := &harness{
		transport: &fakeTransport{},
		composer:  &fakeComposer{},
		store:     invites.NewMemoryStore(),
	}
	cache, err := invites.NewCache(h.store, 16, nil)
	require.NoError(t, err)
	if withSites {
		h.sites = sitewatch.New(sitewatch.Config{Sites: []string{"https://a.example"}}, nil)
	}
	h.bot = New(Deps{
		Transport: h.transport,
		Composer:  h.composer,
		Invites:   cache,
		Sites:     h.sites,
		AdminID:   admin,
		Name:      "TestBot",
	})
	return h
}

func command(from int64, name, args string) channels.Update {
	return channels.Update{Message: &channels.IncomingMessage{
		ChatID: from, ChatType: channels.ChatPrivate, From: from,
		Text: "/" + name, Command: name, CommandArgs: args,
	}}
}

func text(from int64, s string) channels.Update {
	return channels.Update{Message: &channels.IncomingMessage{
		ChatID: from, ChatType: channels.ChatPrivate, From: from, Text: s,
	}}
}

func TestHelp(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, command(stranger, "start", "")))
	require.NoError(t, h.bot.Handle(ctx, command(stranger, "help", "")))
	got := h.transport.texts()
	require.Len(t, got, 2)
	assert.True(t, strings.HasPrefix(got[0], "TestBot turns any message"))

	group := command(stranger, "help", "")
	group.Message.ChatType = channels.ChatGroup
	require.NoError(t, h.bot.Handle(ctx, group))
	assert.Len(t, h.transport.texts(), 2)
}

func TestInviteListing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unauthorized", func(t *testing.T) {
		h := newHarness(t, false)
		require.NoError(t, h.bot.Handle(ctx, command(stranger, "invite", "")))
		assert.Equal(t, []string{msgUnauthorized}, h.transport.texts())
	})

	t.Run("empty", func(t *testing.T) {
		h := newHarness(t, false)
		require.NoError(t, h.bot.Handle(ctx, command(admin, "invite", "")))
		assert.Equal(t, []string{msgNoInvites}, h.transport.texts())
	})

	t.Run("chunked", func(t *testing.T) {
		h := newHarness(t, false)
		for i := range 120 {
			require.NoError(t, h.store.Upsert(ctx, invites.Record{
				ChatID:     int64(-1000000 - i),
				Title:      fmt.Sprintf("Channel %03d", i),
				InviteLink: fmt.Sprintf("https://t.me/+%040d", i),
				UpdatedAt:  time.Now(),
			}))
		}
		require.NoError(t, h.bot.Handle(ctx, command(admin, "invite", "")))

		got := h.transport.texts()
		require.Greater(t, len(got), 1)
		for _, chunk := range got {
			assert.LessOrEqual(t, len([]rune(chunk)), invites.MaxMessageLength)
		}
		assert.True(t, strings.HasPrefix(got[0], "Channel 000 (-1000000) -> https://t.me/+"))
		assert.Equal(t, 120, strings.Count(strings.Join(got, "\n"), "\n")+1)
	})
}

func TestSiteCommandsIgnoreStrangers(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()
	for _, name := range []string{"status", "website", "delete", "cancel"} {
		require.NoError(t, h.bot.Handle(ctx, command(stranger, name, "https://a.example")))
	}
	assert.Empty(t, h.transport.texts())
	assert.Equal(t, []string{"https://a.example"}, h.sites.Sites())
}

func TestStatus(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	require.NoError(t, h.bot.Handle(context.Background(), command(admin, "status", "")))
	assert.Equal(t, "Website status:\nhttps://a.example:\n   Last Status: N/A\n   Last Open: N/A\n   Next Open: N/A\n",
		h.transport.last().Content)
}

func TestAddWebsiteFlow(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, command(admin, "website", "")))
	msg := h.transport.last()
	assert.Equal(t, "Current websites:\nhttps://a.example", msg.Content)
	require.Len(t, msg.Keyboard, 1)
	assert.Equal(t, CallbackAddSite, msg.Keyboard[0][0].CallbackData)

	press := channels.Update{Callback: &channels.CallbackQuery{
		ID: "cb", From: admin, ChatID: admin, ChatType: channels.ChatPrivate, Data: CallbackAddSite,
	}}
	require.NoError(t, h.bot.Handle(ctx, press))
	assert.Equal(t, msgSitePrompt, h.transport.last().Content)

	require.NoError(t, h.bot.Handle(ctx, text(admin, " https://b.example ")))
	assert.Equal(t, "Website https://b.example added successfully!", h.transport.last().Content)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, h.sites.Sites())
	assert.Empty(t, h.composer.messages, "prompt reply must not start a draft")

	require.NoError(t, h.bot.Handle(ctx, press))
	require.NoError(t, h.bot.Handle(ctx, text(admin, "https://a.example")))
	assert.Equal(t, "Website https://a.example is already in the list.", h.transport.last().Content)

	// With no prompt the next message is a draft again.
	require.NoError(t, h.bot.Handle(ctx, text(admin, "https://c.example")))
	assert.Len(t, h.composer.messages, 1)
}

func TestAddWebsitePromptIgnoresGroups(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, channels.Update{Callback: &channels.CallbackQuery{
		ID: "cb", From: admin, ChatID: admin, ChatType: channels.ChatPrivate, Data: CallbackAddSite,
	}}))

	inGroup := text(admin, "https://group.example")
	inGroup.Message.ChatID = -500
	inGroup.Message.ChatType = channels.ChatSupergroup
	require.NoError(t, h.bot.Handle(ctx, inGroup))
	assert.Equal(t, []string{"https://a.example"}, h.sites.Sites())
	assert.Len(t, h.composer.messages, 1)

	require.NoError(t, h.bot.Handle(ctx, text(admin, "https://b.example")))
	assert.Equal(t, "Website https://b.example added successfully!", h.transport.last().Content)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, h.sites.Sites())
}

func TestAddWebsiteStrangerPress(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.bot.Handle(ctx, channels.Update{Callback: &channels.CallbackQuery{
		ID: "cb", From: stranger, ChatID: stranger, ChatType: channels.ChatPrivate, Data: CallbackAddSite,
	}}))
	assert.Equal(t, []string{""}, h.transport.answers)
	assert.Empty(t, h.transport.texts())
	assert.Empty(t, h.composer.callbacks)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, command(admin, "cancel", "")))
	assert.Empty(t, h.transport.texts(), "nothing to cancel")

	require.NoError(t, h.bot.Handle(ctx, channels.Update{Callback: &channels.CallbackQuery{
		ID: "cb", From: admin, ChatID: admin, ChatType: channels.ChatPrivate, Data: CallbackAddSite,
	}}))
	require.NoError(t, h.bot.Handle(ctx, command(admin, "cancel", "")))
	assert.Equal(t, msgOpCancelled, h.transport.last().Content)

	require.NoError(t, h.bot.Handle(ctx, text(admin, "https://b.example")))
	assert.Len(t, h.composer.messages, 1)
	assert.Equal(t, []string{"https://a.example"}, h.sites.Sites())
}

func TestDelete(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, command(admin, "delete", "  ")))
	assert.Equal(t, msgDeleteUsage, h.transport.last().Content)

	require.NoError(t, h.bot.Handle(ctx, command(admin, "delete", "https://nope.example")))
	got := h.transport.texts()
	assert.Equal(t, "Website https://nope.example not found in the list.", got[len(got)-2])

	require.NoError(t, h.bot.Handle(ctx, command(admin, "delete", "https://a.example")))
	got = h.transport.texts()
	assert.Equal(t, "Website https://a.example removed successfully!", got[len(got)-2])
	assert.Equal(t, "Current websites:\n", got[len(got)-1])
	assert.Empty(t, h.sites.Sites())
}

func TestSiteWatchDisabled(t *testing.T) {
	t.Parallel()
	h := newHarness(t, false)
	ctx := context.Background()
	for _, name := range []string{"status", "website", "delete"} {
		require.NoError(t, h.bot.Handle(ctx, command(admin, name, "x")))
	}
	assert.Equal(t, []string{msgSiteWatchOff, msgSiteWatchOff, msgSiteWatchOff}, h.transport.texts())
}

func TestRoutesToComposer(t *testing.T) {
	t.Parallel()
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.bot.Handle(ctx, text(stranger, "hello")))
	require.NoError(t, h.bot.Handle(ctx, channels.Update{Callback: &channels.CallbackQuery{ID: "1", Data: "d:abc:done"}}))
	require.NoError(t, h.bot.Handle(ctx, channels.Update{Inline: &channels.InlineQuery{ID: "2", Query: "share_abc"}}))
	require.NoError(t, h.bot.Handle(ctx, command(stranger, "unknown", "")))
	require.NoError(t, h.bot.Handle(ctx, channels.Update{}))

	assert.Len(t, h.composer.messages, 1)
	assert.Len(t, h.composer.callbacks, 1)
	assert.Len(t, h.composer.inline, 1)
	assert.Empty(t, h.transport.texts())
}
