package feed

import "strings"

// DefaultRelevancePrefix marks a newsletter-publication notification.
const DefaultRelevancePrefix = "New from"

// IsRelevant reports whether a notification's visible text starts with
// prefix. Unreadable (empty) text is never relevant.
func IsRelevant(text, prefix string) bool {
	text = strings.TrimSpace(text)
	if text == "" || prefix == "" {
		return false
	}
	return strings.HasPrefix(text, prefix)
}
