// Package domain defines the persistence models for scheduled posts. These
// types are mapped with GORM and form the core data layer of the scheduler.
package domain

import (
	"strings"
	"time"
)

// PostStatus is the lifecycle state of a ScheduledPost.
//
// Legal transitions:
//
//	pending   -> published | failed | cancelled
//	failed    -> pending   (retry reset)
//	published, cancelled   are terminal
type PostStatus string

const (
	StatusPending   PostStatus = "pending"
	StatusPublished PostStatus = "published"
	StatusFailed    PostStatus = "failed"
	StatusCancelled PostStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPublished, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no operation may move a post out of s.
// A failed post is only terminal once its retry budget is spent, which the
// model alone cannot know, so it is not reported here.
func (s PostStatus) Terminal() bool {
	return s == StatusPublished || s == StatusCancelled
}

// ParseStatus parses a case-insensitive status name. The empty string yields
// ("", true) so callers can treat it as "no filter".
func ParseStatus(v string) (PostStatus, bool) {
	s := PostStatus(strings.ToLower(strings.TrimSpace(v)))
	if s == "" {
		return "", true
	}
	return s, s.Valid()
}

// Visibility is the audience of a published post on the external network.
type Visibility string

const (
	VisibilityPublic      Visibility = "PUBLIC"
	VisibilityConnections Visibility = "CONNECTIONS"
	VisibilityLoggedIn    Visibility = "LOGGED_IN"
	VisibilityContainer   Visibility = "CONTAINER"
)

// Visibilities lists every accepted Visibility in a stable order.
var Visibilities = []Visibility{
	VisibilityPublic,
	VisibilityConnections,
	VisibilityLoggedIn,
	VisibilityContainer,
}

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	for _, known := range Visibilities {
		if v == known {
			return true
		}
	}
	return false
}

// ParseVisibility parses a case-insensitive visibility name. The empty string
// maps to VisibilityPublic.
func ParseVisibility(v string) (Visibility, bool) {
	vis := Visibility(strings.ToUpper(strings.TrimSpace(v)))
	if vis == "" {
		return VisibilityPublic, true
	}
	return vis, vis.Valid()
}

// ScheduledPost is a post queued for publication at ScheduledTime.
//
// Fields:
//   - ID: UUID primary key (char(36)), never reused.
//   - Content: post body, NFC-normalized before it is stored.
//   - LinkURL: optional article URL for link-preview posts.
//   - Visibility: audience on the external network.
//   - ScheduledTime: due time; immutable except through a pending-only reschedule.
//   - Status: see PostStatus.
//   - PublishedAt / ExternalID: set together on pending -> published.
//   - ErrorMessage: reason of the current failure; cleared by a retry reset.
//   - LastError: reason of the most recent failed attempt. Survives the
//     automatic retry reset so the cause stays visible between ticks.
//   - RetryCount: failed attempts in the current retry cycle.
type ScheduledPost struct {
	ID            string     `json:"id"                      gorm:"type:char(36);primaryKey"`
	Content       string     `json:"content"                 gorm:"type:text;not null"`
	LinkURL       *string    `json:"link_url,omitempty"      gorm:"type:varchar(2048)"`
	Visibility    Visibility `json:"visibility"              gorm:"type:varchar(16);not null;default:'PUBLIC'"`
	ScheduledTime time.Time  `json:"scheduled_time"          gorm:"not null;index:idx_posts_due,priority:2"`
	Status        PostStatus `json:"status"                  gorm:"type:varchar(16);not null;default:'pending';index:idx_posts_due,priority:1"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	ExternalID    *string    `json:"external_id,omitempty"   gorm:"type:varchar(255)"`
	ErrorMessage  *string    `json:"error_message,omitempty" gorm:"type:text"`
	LastError     *string    `json:"last_error,omitempty"    gorm:"type:text"`
	RetryCount    int        `json:"retry_count"             gorm:"not null;default:0"`
}

// TableName returns the database table name for ScheduledPost.
func (ScheduledPost) TableName() string { return "scheduled_posts" }
