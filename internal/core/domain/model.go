package domain

import "time"

// Priority orders queued requests; lower value wins.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 1
	PriorityLow    Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority maps a query-string value to a priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch s {
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

type SearchMode string

const (
	SearchModeLatest SearchMode = "latest"
	SearchModeTop    SearchMode = "top"
)

// Tweet is the reduced upstream post shape the API returns.
type Tweet struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	Likes          int       `json:"likes"`
	Retweets       int       `json:"retweets"`
	Replies        int       `json:"replies"`
	Views          int       `json:"views"`
	IsReply        bool      `json:"is_reply"`
	IsRetweet      bool      `json:"is_retweet"`
	ConversationID string    `json:"conversation_id,omitempty"`
}

// Profile is the reduced upstream user shape the API returns.
type Profile struct {
	UserID         string    `json:"user_id"`
	Username       string    `json:"username"`
	Name           string    `json:"name"`
	Biography      string    `json:"biography,omitempty"`
	Location       string    `json:"location,omitempty"`
	FollowersCount int       `json:"followers_count"`
	FollowingCount int       `json:"following_count"`
	TweetsCount    int       `json:"tweets_count"`
	Verified       bool      `json:"verified"`
	Joined         time.Time `json:"joined,omitzero"`
}
