package notify

import "github.com/wolfeidau/backoffice/internal/models"

// displayText extracts a title and body for a local notification. The
// structured notification payload wins; otherwise the data payload is used,
// with data.message standing in for a missing data.body.
func displayText(msg models.PushMessage) (title, body string, ok bool) {
	if n := msg.Notification; n != nil && n.Title != "" && n.Body != "" {
		return n.Title, n.Body, true
	}

	title = msg.Data["title"]
	body = msg.Data["body"]
	if body == "" {
		body = msg.Data["message"]
	}

	return title, body, title != "" && body != ""
}
