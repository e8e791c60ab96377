package composer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
	"github.com/jholhewres/linkpost/pkg/linkpost/draft"
)

// Validation errors. The prompt that produced the input stays active.
var (
	ErrButtonFormat = errors.New("composer: button text must be <label> <URL>")
	ErrURLScheme    = errors.New("composer: URL scheme not allowed")
	ErrDestination  = errors.New("composer: destination must be a numeric chat id")
)

// ErrNotAdmin is returned when the acting user cannot post into the
// destination.
var ErrNotAdmin = errors.New("composer: not an admin in the destination")

// ParseButtonText splits "<label> <URL>" on the last whitespace run. The
// label may itself contain spaces.
func ParseButtonText(text string, schemes []string) (draft.Button, error) {
	text = strings.TrimSpace(text)
	idx := strings.LastIndexFunc(text, unicode.IsSpace)
	if idx < 0 {
		return draft.Button{}, ErrButtonFormat
	}
	_, size := utf8.DecodeRuneInString(text[idx:])
	label := strings.TrimSpace(text[:idx])
	url := text[idx+size:]
	if label == "" || url == "" {
		return draft.Button{}, ErrButtonFormat
	}
	if !draft.AllowedScheme(url, schemes) {
		return draft.Button{}, fmt.Errorf("%w: %q", ErrURLScheme, url)
	}
	return draft.Button{Label: label, URL: url}, nil
}

// ParseDestination reads the destination chat from a forwarded message's
// origin or from a typed integer.
func ParseDestination(msg *channels.IncomingMessage) (int64, error) {
	if msg.ForwardFromChat != 0 {
		return msg.ForwardFromChat, nil
	}
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return 0, fmt.Errorf("%w: no text", ErrDestination)
	}
	id, err := strconv.ParseInt(text, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrDestination, text)
	}
	return id, nil
}
