// Package site isolates the LinkedIn DOM selectors.
// LinkedIn changes its markup frequently; update these when automation breaks.
package site

// Login page
const (
	LoginUsername = `#username`
	LoginPassword = `#password`
	LoginSubmit   = `button[type="submit"]`
)

// AuthMarker is only rendered for a signed-in member (the global nav bar).
const AuthMarker = `#global-nav`

// Notifications view
const (
	NotificationList = `main`
	NotificationCard = `article.nt-card`
	NotificationText = `.nt-card__headline, .nt-card__text--3-line`
	NotificationLink = `a.nt-card__headline, a[href*="/feed/update/"], a[href*="/pulse/"], a[href*="/newsletters/"]`
)

// Post page
const (
	LikeButton    = `button.react-button__trigger`
	CommentButton = `button.comment-button`
	CommentBox    = `div.comments-comment-box__form div[role="textbox"], div.ql-editor[contenteditable="true"]`
	CommentSubmit = `button.comments-comment-box__submit-button, button.comments-comment-box__submit-button--cr`
)

// Share box on the home feed
const (
	StartPost    = `button.share-box-feed-entry__trigger, div[aria-label^="Start a post"]`
	PostComposer = `div[role="dialog"] div[role="textbox"]`
	PostSubmit   = `div[role="dialog"] button[aria-label="Post"], button.share-actions__primary-action`
)

// Cookies LinkedIn needs to consider a session signed in.
const (
	SessionCookie = "li_at"
	CSRFCookie    = "JSESSIONID"
)

// CookieDomain matches the registrable domain of LinkedIn cookies.
const CookieDomain = "linkedin.com"
