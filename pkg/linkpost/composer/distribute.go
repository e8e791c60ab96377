package composer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/draft"
	"github.com/jholhewres/linkpost/pkg/linkpost/invites"
)

// promptDestination asks where a finished draft should go.
func (c *Composer) promptDestination(ctx context.Context, d *draft.Draft) error {
	if !d.Finished {
		return c.reply(ctx, d.Owner, msgNotFinished, nil)
	}
	d.Pending = draft.Prompt{Kind: draft.PromptDestination}
	d.Destination = 0
	if err := c.save(d); err != nil {
		return err
	}
	return c.reply(ctx, d.Owner, msgDestPrompt, nil)
}

// captureDestination consumes a reply to the destination prompt, checks the
// sender's standing in that chat and asks for confirmation.
func (c *Composer) captureDestination(ctx context.Context, d *draft.Draft, msg *channels.IncomingMessage) error {
	dest, err := ParseDestination(msg)
	if err != nil {
		if msg.Text == "" {
			return c.reply(ctx, d.Owner, msgDestNoText, nil)
		}
		return c.reply(ctx, d.Owner, msgDestNotNumeric, nil)
	}

	authErr := c.authorize(ctx, dest, msg.From)

	// Any outcome ends the destination prompt.
	d.Pending = draft.Prompt{}
	if authErr != nil {
		if err := c.save(d); err != nil {
			return err
		}
		c.logger.Info("distribution refused", "draft", d.ID, "destination", dest, "error", authErr)
		if errors.Is(authErr, ErrNotAdmin) {
			return c.reply(ctx, d.Owner, msgNotAdmin, nil)
		}
		return c.reply(ctx, d.Owner, fmt.Sprintf(msgAdminCheckFailed, errors.Unwrap(authErr)), nil)
	}

	d.Destination = dest
	if err := c.save(d); err != nil {
		return err
	}
	_, err = c.transport.SendMessage(ctx, &channels.OutgoingMessage{
		ChatID:   d.Owner,
		Content:  fmt.Sprintf(msgConfirm, dest),
		ReplyTo:  d.FinalRef.MessageID,
		Keyboard: draft.ConfirmKeyboard(d, dest),
	})
	if err != nil {
		return fmt.Errorf("composer: confirmation prompt: %w", err)
	}
	return nil
}

// adminCheckError wraps a failed membership lookup.
type adminCheckError struct{ err error }

func (e *adminCheckError) Error() string { return "composer: checking admin status: " + e.err.Error() }
func (e *adminCheckError) Unwrap() error { return e.err }

// authorize requires userID to be an administrator or the creator of dest.
func (c *Composer) authorize(ctx context.Context, dest, userID int64) error {
	status, err := c.transport.MemberStatus(ctx, dest, userID)
	if err != nil {
		return &adminCheckError{err: err}
	}
	if !status.IsAdmin() {
		return fmt.Errorf("%w: status %q", ErrNotAdmin, status)
	}
	return nil
}

// confirm delivers the final post into dest. The draft is discarded whether
// delivery succeeds or not.
func (c *Composer) confirm(ctx context.Context, d *draft.Draft, dest, userID int64) error {
	if !d.Finished || d.Destination == 0 || dest != d.Destination {
		return c.reply(ctx, d.Owner, msgDestMismatch, nil)
	}

	_, err := c.transport.CopyMessage(ctx, dest, d.Content.Source, draft.FinalKeyboard(d))
	c.store.Remove(d.ID)
	if err != nil {
		c.logger.Warn("post failed", "draft", d.ID, "destination", dest, "error", err)
		return c.reply(ctx, d.Owner, fmt.Sprintf(msgPostFailed, err), nil)
	}

	c.logger.Info("post delivered", "draft", d.ID, "destination", dest, "user", userID)
	if err := c.reply(ctx, d.Owner, msgPosted, nil); err != nil {
		return err
	}

	if err := c.recordInvite(ctx, dest); err != nil {
		c.logger.Warn("invite link not recorded", "destination", dest, "error", err)
		return c.reply(ctx, d.Owner, fmt.Sprintf(msgInviteFailed, err), nil)
	}
	return nil
}

// recordInvite issues a fresh invite link for dest and stores it under the
// chat's title.
func (c *Composer) recordInvite(ctx context.Context, dest int64) error {
	link, err := c.transport.CreateInviteLink(ctx, dest)
	if err != nil {
		return err
	}

	title, err := c.transport.ChatTitle(ctx, dest)
	if err != nil {
		c.logger.Debug("chat title lookup failed", "chat", dest, "error", err)
		title = ""
	}
	if title == "" {
		title = invites.UnknownTitle
	}

	if c.invites == nil {
		return nil
	}
	return c.invites.Upsert(ctx, dest, title, link)
}

// decline abandons the draft.
func (c *Composer) decline(ctx context.Context, d *draft.Draft) error {
	c.store.Remove(d.ID)
	c.logger.Info("post declined", "draft", d.ID)
	return c.reply(ctx, d.Owner, msgCancelled, nil)
}
