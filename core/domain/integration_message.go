package domain

import "time"

// Channel is a Slack conversation the bot can see.
type Channel struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsPrivate   bool   `json:"is_private"`
	IsDirect    bool   `json:"is_direct"`
	MemberCount int    `json:"member_count"`
}

// ExternalMessage is a message read from a provider. Never persisted.
type ExternalMessage struct {
	ExternalID string    `json:"external_id"`
	Text       string    `json:"text"`
	AuthorID   string    `json:"author_id"`
	Timestamp  time.Time `json:"timestamp"`
}

type SendOptions struct {
	ThreadTS    string `json:"thread_ts,omitempty"`
	UnfurlLinks bool   `json:"unfurl_links,omitempty"`
}

type SendResult struct {
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// OutgoingEmail is a drafted email ready to send. InReplyTo is either a
// Gmail message id or an RFC 5322 Message-ID in angle brackets.
type OutgoingEmail struct {
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	IsHTML    bool     `json:"is_html,omitempty"`
	InReplyTo string   `json:"in_reply_to,omitempty"`
}

// CalendarEvent is the application's own event as handed to sync-out.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
}

// ExternalEvent is an event read from or written to the provider calendar.
type ExternalEvent struct {
	ExternalID  string    `json:"external_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day"`
	HTMLLink    string    `json:"html_link,omitempty"`
}

// SyncOutResult reports how many events reached the provider.
type SyncOutResult struct {
	Synced      int           `json:"synced"`
	Failed      int           `json:"failed"`
	ExternalIDs []string      `json:"external_ids"`
	Errors      []SyncFailure `json:"errors,omitempty"`
}

// SyncFailure names an event the provider did not accept.
type SyncFailure struct {
	EventID      string `json:"event_id"`
	Code         string `json:"code"`
	ProviderCode string `json:"provider_code,omitempty"`
	Message      string `json:"message"`
}

const (
	MaxHistoryLimit     = 100
	DefaultHistoryLimit = 20
)

// ClampHistoryLimit bounds a requested message count to 1..MaxHistoryLimit.
func ClampHistoryLimit(n int) int {
	switch {
	case n < 1:
		return 1
	case n > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return n
	}
}
