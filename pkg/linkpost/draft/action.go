package draft

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotDraftAction is returned by ParseAction for callback data that does
// not belong to a draft.
var ErrNotDraftAction = errors.New("draft: not a draft action")

// actionPrefix marks callback data addressed to a draft.
const actionPrefix = "d"

// ActionKind enumerates the structured actions a keyboard can trigger.
type ActionKind int

const (
	ActionAddToRow ActionKind = iota + 1
	ActionNewRow
	ActionFinish
	ActionPost
	ActionConfirmPost
	ActionDeclinePost
)

var actionTokens = map[ActionKind]string{
	ActionAddToRow:    "row",
	ActionNewRow:      "new",
	ActionFinish:      "done",
	ActionPost:        "post",
	ActionConfirmPost: "yes",
	ActionDeclinePost: "no",
}

func (k ActionKind) String() string {
	if t, ok := actionTokens[k]; ok {
		return t
	}
	return "unknown"
}

// Action is a decoded button press. Row is set for ActionAddToRow and
// Destination for ActionConfirmPost.
type Action struct {
	Kind        ActionKind
	DraftID     string
	Row         int
	Destination int64
}

// Encode renders the action as callback data, e.g. "d:1a2b3c4d5e6f:row:0".
func (a Action) Encode() string {
	base := actionPrefix + ":" + a.DraftID + ":" + a.Kind.String()
	switch a.Kind {
	case ActionAddToRow:
		return base + ":" + strconv.Itoa(a.Row)
	case ActionConfirmPost:
		return base + ":" + strconv.FormatInt(a.Destination, 10)
	default:
		return base
	}
}

// ParseAction decodes callback data produced by Encode.
func ParseAction(data string) (Action, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 3 || parts[0] != actionPrefix {
		return Action{}, ErrNotDraftAction
	}
	if parts[1] == "" {
		return Action{}, fmt.Errorf("draft: action %q: empty draft id", data)
	}

	a := Action{DraftID: parts[1]}
	for kind, token := range actionTokens {
		if token == parts[2] {
			a.Kind = kind
			break
		}
	}

	switch a.Kind {
	case ActionAddToRow:
		if len(parts) != 4 {
			return Action{}, fmt.Errorf("draft: action %q: missing row", data)
		}
		row, err := strconv.Atoi(parts[3])
		if err != nil || row < 0 {
			return Action{}, fmt.Errorf("draft: action %q: invalid row", data)
		}
		a.Row = row
	case ActionConfirmPost:
		if len(parts) != 4 {
			return Action{}, fmt.Errorf("draft: action %q: missing destination", data)
		}
		dest, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil || dest == 0 {
			return Action{}, fmt.Errorf("draft: action %q: invalid destination", data)
		}
		a.Destination = dest
	case ActionNewRow, ActionFinish, ActionPost, ActionDeclinePost:
		if len(parts) != 3 {
			return Action{}, fmt.Errorf("draft: action %q: unexpected arguments", data)
		}
	default:
		return Action{}, fmt.Errorf("draft: action %q: unknown kind", data)
	}
	return a, nil
}
