package draft

import "github.com/jholhewres/linkpost/pkg/linkpost/channels"

// SharePrefix is the inline query prefix that resolves to a draft.
const SharePrefix = "share_"

// EditingKeyboard renders the grid with a "+" control after every row, a
// standalone "+" row for a new row and, once any button exists, "Done ✅".
func EditingKeyboard(d *Draft) channels.Keyboard {
	kb := make(channels.Keyboard, 0, len(d.Grid)+2)
	for i, row := range d.Grid {
		out := make([]channels.Button, 0, len(row)+1)
		for _, b := range row {
			out = append(out, channels.Button{Text: b.Label, URL: b.URL})
		}
		out = append(out, channels.Button{
			Text:         "+",
			CallbackData: Action{Kind: ActionAddToRow, DraftID: d.ID, Row: i}.Encode(),
		})
		kb = append(kb, out)
	}
	kb = append(kb, []channels.Button{{
		Text:         "+",
		CallbackData: Action{Kind: ActionNewRow, DraftID: d.ID}.Encode(),
	}})
	if d.ButtonCount() > 0 {
		kb = append(kb, []channels.Button{{
			Text:         "Done ✅",
			CallbackData: Action{Kind: ActionFinish, DraftID: d.ID}.Encode(),
		}})
	}
	return kb
}

// FinalKeyboard renders the grid alone. Empty rows are skipped.
func FinalKeyboard(d *Draft) channels.Keyboard {
	var kb channels.Keyboard
	for _, row := range d.Grid {
		if len(row) == 0 {
			continue
		}
		out := make([]channels.Button, 0, len(row))
		for _, b := range row {
			out = append(out, channels.Button{Text: b.Label, URL: b.URL})
		}
		kb = append(kb, out)
	}
	return kb
}

// ShareKeyboard offers inline sharing and posting of a finished draft.
func ShareKeyboard(d *Draft) channels.Keyboard {
	return channels.Keyboard{
		{{Text: "Share", SwitchInlineQuery: SharePrefix + d.ID}},
		{{Text: "Post To Group/Channel", CallbackData: Action{Kind: ActionPost, DraftID: d.ID}.Encode()}},
	}
}

// ConfirmKeyboard asks whether to post the draft into dest.
func ConfirmKeyboard(d *Draft, dest int64) channels.Keyboard {
	return channels.Keyboard{{
		{Text: "Yes", CallbackData: Action{Kind: ActionConfirmPost, DraftID: d.ID, Destination: dest}.Encode()},
		{Text: "No", CallbackData: Action{Kind: ActionDeclinePost, DraftID: d.ID}.Encode()},
	}}
}
