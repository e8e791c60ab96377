package composer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/draft"
)

// createDraft captures msg as a new draft and delivers the first editing
// rendition. A failed copy discards the draft.
func (c *Composer) createDraft(ctx context.Context, msg *channels.IncomingMessage) error {
	content := draft.Content{
		Source:  msg.Ref(),
		Text:    msg.Body(),
		IsMedia: msg.HasMedia,
	}
	var rows []draft.Row
	if msg.Forwarded {
		rows = draft.ExtractRows(msg.Keyboard, c.schemes)
	}

	d := c.store.Create(msg.ChatID, content, rows)
	ref, err := c.transport.CopyMessage(ctx, msg.ChatID, content.Source, draft.EditingKeyboard(d))
	if err != nil {
		c.store.Remove(d.ID)
		c.logger.Warn("draft discarded, copy failed", "draft", d.ID, "error", err)
		return c.reply(ctx, msg.ChatID, fmt.Sprintf(msgCopyFailed, err), nil)
	}

	d.EditingRef = ref
	if err := c.save(d); err != nil {
		return err
	}
	c.logger.Info("draft created", "draft", d.ID, "owner", d.Owner, "seeded_rows", len(d.Grid))
	return nil
}

// promptButton asks for button text targeting row. The grid is untouched.
func (c *Composer) promptButton(ctx context.Context, d *draft.Draft, row int) error {
	if row < 0 || row > len(d.Grid) {
		return c.reply(ctx, d.Owner, msgRowMissing, nil)
	}
	d.Pending = draft.Prompt{Kind: draft.PromptButtonText, Row: row}
	if err := c.save(d); err != nil {
		return err
	}
	return c.reply(ctx, d.Owner, msgButtonPrompt, nil)
}

// addButton consumes a reply to a button prompt. Invalid input re-prompts
// and leaves the draft as it was.
func (c *Composer) addButton(ctx context.Context, d *draft.Draft, msg *channels.IncomingMessage) error {
	b, err := ParseButtonText(msg.Text, c.schemes)
	switch {
	case errors.Is(err, ErrURLScheme):
		return c.reply(ctx, d.Owner, invalidURLText(c.schemes), nil)
	case err != nil:
		return c.reply(ctx, d.Owner, msgButtonFormat, nil)
	}

	row := d.Pending.Row
	if err := d.AddButton(row, b); err != nil {
		d.Pending = draft.Prompt{}
		if err := c.save(d); err != nil {
			return err
		}
		return c.reply(ctx, d.Owner, msgRowMissing, nil)
	}
	d.Pending = draft.Prompt{}

	ref, err := c.transport.CopyMessage(ctx, d.Owner, d.Content.Source, draft.EditingKeyboard(d))
	if err != nil {
		// The button is kept; the next rendition will show it.
		if serr := c.save(d); serr != nil {
			return serr
		}
		return c.reply(ctx, d.Owner, fmt.Sprintf(msgCopyFailed, err), nil)
	}
	d.EditingRef = ref
	if err := c.save(d); err != nil {
		return err
	}
	c.logger.Debug("button added", "draft", d.ID, "row", row, "buttons", d.ButtonCount())
	return c.reply(ctx, d.Owner, msgButtonAdded, nil)
}

// finish delivers the final rendition and offers sharing and posting.
func (c *Composer) finish(ctx context.Context, d *draft.Draft) error {
	if d.ButtonCount() == 0 {
		return c.reply(ctx, d.Owner, msgNoButtons, nil)
	}

	ref, err := c.transport.CopyMessage(ctx, d.Owner, d.Content.Source, draft.FinalKeyboard(d))
	if err != nil {
		return c.reply(ctx, d.Owner, fmt.Sprintf(msgCopyFailed, err), nil)
	}
	d.FinalRef = ref
	d.Finished = true
	d.Destination = 0
	if err := c.save(d); err != nil {
		return err
	}
	c.logger.Info("draft finished", "draft", d.ID, "buttons", d.ButtonCount())
	return c.reply(ctx, d.Owner, msgFinished, draft.ShareKeyboard(d))
}
