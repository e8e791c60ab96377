package composer

import "strings"

// Operator-facing texts.
const (
	msgButtonPrompt     = "Please send button info in format: <label> <URL>"
	msgButtonFormat     = "Invalid format. Please send in format: <label> <URL>"
	msgButtonAdded      = "Button added! Use the '+' buttons to add more or 'Done ✅' to finalize."
	msgRowMissing       = "That row does not exist. Use the '+' buttons on the latest draft."
	msgNoButtons        = "No URL buttons created yet."
	msgFinished         = "You can share it or post it to a group/channel."
	msgNotFinished      = "Press 'Done ✅' before posting."
	msgDestPrompt       = "Please send the channel/group ID or forward a message from that channel/group."
	msgDestNotNumeric   = "Invalid channel/group ID. It should be numeric."
	msgDestNoText       = "Invalid input for channel/group ID."
	msgNotAdmin         = "You are not an admin in that channel/group."
	msgAdminCheckFailed = "Error checking admin status: %v"
	msgConfirm          = "Do you want to post the final message to channel/group %d?"
	msgDestMismatch     = "That channel/group was not confirmed for this post."
	msgPosted           = "Message posted successfully!"
	msgPostFailed       = "Failed to post message: %v"
	msgInviteFailed     = "Posted, but the invite link could not be recorded: %v"
	msgCancelled        = "Posting cancelled."
	msgSessionNotFound  = "Session not found."
	msgCopyFailed       = "Could not copy the message: %v"

	shareTitle       = "Share Final Message"
	shareDescription = "Tap to share the final post."
	shareNoText      = "No text content"
)

// schemeHint renders "http://, https:// or tg://" for the allowed schemes.
func schemeHint(schemes []string) string {
	parts := make([]string, len(schemes))
	for i, s := range schemes {
		parts[i] = s + "://"
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return strings.Join(parts[:len(parts)-1], ", ") + " or " + parts[len(parts)-1]
}

func invalidURLText(schemes []string) string {
	return "Invalid URL. It must start with " + schemeHint(schemes)
}
