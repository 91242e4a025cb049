package types

import "time"

// NotificationItem is one entry of the notifications feed as rendered on a
// single scheduler tick. It is never persisted.
type NotificationItem struct {
	Index    int    `json:"index"` // 1-based ordinal position in the feed
	URL      string `json:"url"`
	Text     string `json:"text"`
	Relevant bool   `json:"relevant"`
}

// Engagement is a completed like+comment on a notification's target post.
type Engagement struct {
	URL       string    `json:"url"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}
