// Package draft holds the in-progress posts an operator composes: the
// captured content, the button grid, the single pending prompt and the
// renditions delivered so far. It also renders the inline keyboards for a
// draft and encodes the button actions that point back at it.
package draft

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jholhewres/linkpost/pkg/linkpost/channels"
)

// Errors.
var (
	// ErrNotFound is returned when a draft id does not resolve.
	ErrNotFound = errors.New("draft: not found")

	// ErrRowRange is returned when a button targets a row that does not
	// exist and is not the next new row.
	ErrRowRange = errors.New("draft: row index out of range")
)

// DefaultSchemes are the URL schemes a button may use.
var DefaultSchemes = []string{"http", "https", "tg"}

// Button is a labeled hyperlink.
type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Row is an ordered row of buttons.
type Row []Button

// Content is the captured source of a draft. It never changes after capture.
type Content struct {
	// Source is the original message every rendition is copied from.
	Source channels.MessageRef

	// Text is the message text, or its caption for media.
	Text string

	// IsMedia is set when the source carries a non-text payload.
	IsMedia bool
}

// PromptKind is the kind of free-form reply a draft is waiting for.
type PromptKind int

const (
	PromptNone PromptKind = iota
	PromptButtonText
	PromptDestination
)

func (k PromptKind) String() string {
	switch k {
	case PromptButtonText:
		return "button_text"
	case PromptDestination:
		return "destination"
	default:
		return "none"
	}
}

// Prompt is a pending prompt. Row is only meaningful for PromptButtonText.
type Prompt struct {
	Kind PromptKind
	Row  int
}

// State is the composition state derived from a draft's fields.
type State string

const (
	StateComposing            State = "composing"
	StateAwaitingButtonText   State = "awaiting_button_text"
	StateFinished             State = "finished"
	StateAwaitingDestination  State = "awaiting_destination"
	StateAwaitingConfirmation State = "awaiting_confirmation"
)

// Draft is one post under composition.
type Draft struct {
	ID      string
	Owner   int64
	Content Content
	Grid    []Row
	Pending Prompt

	// EditingRef is the latest rendition carrying the editing keyboard.
	EditingRef channels.MessageRef

	// FinalRef is the latest rendition carrying the final keyboard.
	FinalRef channels.MessageRef

	Finished bool

	// Destination is the authorized chat awaiting a yes/no answer.
	Destination int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// State reports where the draft is in the composition flow.
func (d *Draft) State() State {
	switch {
	case d.Pending.Kind == PromptButtonText:
		return StateAwaitingButtonText
	case d.Pending.Kind == PromptDestination:
		return StateAwaitingDestination
	case d.Finished && d.Destination != 0:
		return StateAwaitingConfirmation
	case d.Finished:
		return StateFinished
	default:
		return StateComposing
	}
}

// ButtonCount returns the number of buttons across all rows.
func (d *Draft) ButtonCount() int {
	n := 0
	for _, row := range d.Grid {
		n += len(row)
	}
	return n
}

// AddButton appends b to row. A row equal to len(Grid) opens a new row.
// Adding a button invalidates any finished rendition.
func (d *Draft) AddButton(row int, b Button) error {
	switch {
	case row >= 0 && row < len(d.Grid):
		d.Grid[row] = append(d.Grid[row], b)
	case row == len(d.Grid):
		d.Grid = append(d.Grid, Row{b})
	default:
		return fmt.Errorf("%w: %d (rows: %d)", ErrRowRange, row, len(d.Grid))
	}
	d.Finished = false
	d.FinalRef = channels.MessageRef{}
	d.Destination = 0
	return nil
}

// Clone returns a deep copy of d.
func (d *Draft) Clone() *Draft {
	c := *d
	if d.Grid != nil {
		c.Grid = make([]Row, len(d.Grid))
		for i, row := range d.Grid {
			c.Grid[i] = append(Row(nil), row...)
		}
	}
	return &c
}

// AllowedScheme reports whether rawURL starts with one of schemes followed
// by "://". Matching is case-insensitive.
func AllowedScheme(rawURL string, schemes []string) bool {
	lower := strings.ToLower(rawURL)
	for _, s := range schemes {
		if strings.HasPrefix(lower, strings.ToLower(s)+"://") {
			return true
		}
	}
	return false
}

// ExtractRows keeps the URL buttons of kb whose scheme is allowed. Rows left
// empty are dropped.
func ExtractRows(kb channels.Keyboard, schemes []string) []Row {
	var rows []Row
	for _, row := range kb {
		var out Row
		for _, b := range row {
			if b.URL == "" || !AllowedScheme(b.URL, schemes) {
				continue
			}
			out = append(out, Button{Label: b.Text, URL: b.URL})
		}
		if len(out) > 0 {
			rows = append(rows, out)
		}
	}
	return rows
}
