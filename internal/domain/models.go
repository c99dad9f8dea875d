// Package domain defines the persistence models for community submissions and
// the read-only public projection derived from them. Submission is mapped with
// GORM and is the only durable record of a community's lifecycle.
package domain

import (
	"time"
)

// Status is the lifecycle state of a Submission.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusDelisted Status = "delisted"
)

// Valid reports whether s is one of the four known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDelisted:
		return true
	}
	return false
}

// Statuses lists every lifecycle state in declaration order.
func Statuses() []Status {
	return []Status{StatusPending, StatusApproved, StatusRejected, StatusDelisted}
}

// JoinType tells whether joining a community is free or paid.
type JoinType string

const (
	JoinFree JoinType = "free"
	JoinPaid JoinType = "paid"
)

// Valid reports whether j is free or paid.
func (j JoinType) Valid() bool { return j == JoinFree || j == JoinPaid }

// Submission is a community's durable lifecycle record.
//
// Fields:
//   - ID: UUID assigned on insert; immutable.
//   - Status: pending|approved|rejected|delisted (DB check constraint).
//   - JoinLink: required for free communities. For paid communities it is
//     private and never leaves the service through a public projection.
//   - PriceInR: required for paid communities, in rupees.
//   - SubmittedBy: identity of the submitter ("" for anonymous submissions).
//   - ReviewedAt / ReviewedBy / ReviewNotes: set on a transition out of pending
//     (and on delist).
//   - CreatedAt: set once on insert and never mutated.
type Submission struct {
	ID               string     `json:"id"                          gorm:"type:char(36);primaryKey"`
	Status           Status     `json:"status"                      gorm:"type:varchar(16);not null;default:'pending';index:idx_status_created,priority:1;check:status IN ('pending','approved','rejected','delisted')"`
	Name             string     `json:"name"                        gorm:"type:varchar(100);not null"`
	Category         string     `json:"category,omitempty"          gorm:"type:varchar(50)"`
	Platform         string     `json:"platform,omitempty"          gorm:"type:varchar(20)"`
	ShortDescription string     `json:"short_description,omitempty" gorm:"type:varchar(200)"`
	LongDescription  string     `json:"long_description,omitempty"  gorm:"type:text"`
	FounderName      string     `json:"founder_name,omitempty"      gorm:"type:varchar(100)"`
	FounderBio       string     `json:"founder_bio,omitempty"       gorm:"type:varchar(500)"`
	LogoURL          string     `json:"logo_url,omitempty"          gorm:"type:varchar(500)"`
	JoinType         JoinType   `json:"join_type"                   gorm:"type:varchar(8);not null;check:join_type IN ('free','paid')"`
	JoinLink         string     `json:"join_link,omitempty"         gorm:"type:varchar(500)"`
	PriceInR         *int       `json:"price_in_r,omitempty"`
	SubmittedBy      string     `json:"submitted_by,omitempty"      gorm:"type:varchar(64);index"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	ReviewedBy       string     `json:"reviewed_by,omitempty"       gorm:"type:varchar(64)"`
	ReviewNotes      string     `json:"review_notes,omitempty"      gorm:"type:text"`
	CreatedAt        time.Time  `json:"created_at"                  gorm:"not null;index:idx_status_created,priority:2"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Submission.
func (Submission) TableName() string { return "submissions" }

// LiveCommunity is the public, derived view of an approved Submission or of a
// seeded example. It is rebuilt on every projection recompute and never
// persisted. JoinLink is empty (and omitted from JSON) for paid communities.
type LiveCommunity struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Category         string    `json:"category,omitempty"`
	Platform         string    `json:"platform,omitempty"`
	ShortDescription string    `json:"short_description,omitempty"`
	LongDescription  string    `json:"long_description,omitempty"`
	FounderName      string    `json:"founder_name,omitempty"`
	FounderBio       string    `json:"founder_bio,omitempty"`
	LogoURL          string    `json:"logo_url,omitempty"`
	JoinType         JoinType  `json:"join_type"`
	JoinLink         string    `json:"join_link,omitempty"`
	PriceInR         *int      `json:"price_in_r,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	Seed             bool      `json:"seed,omitempty"`
}

// Public maps s to its public-safe projection. The join link of a paid
// community is always dropped, whatever is stored.
func (s Submission) Public() LiveCommunity {
	lc := LiveCommunity{
		ID:               s.ID,
		Name:             s.Name,
		Category:         s.Category,
		Platform:         s.Platform,
		ShortDescription: s.ShortDescription,
		LongDescription:  s.LongDescription,
		FounderName:      s.FounderName,
		FounderBio:       s.FounderBio,
		LogoURL:          s.LogoURL,
		JoinType:         s.JoinType,
		JoinLink:         s.JoinLink,
		CreatedAt:        s.CreatedAt,
	}
	if s.PriceInR != nil {
		p := *s.PriceInR
		lc.PriceInR = &p
	}
	return lc.Sanitized()
}

// Sanitized returns a copy of c that satisfies the paid-link privacy rule.
// Seed records pass through it too, so a mistyped seed file cannot leak.
func (c LiveCommunity) Sanitized() LiveCommunity {
	if c.JoinType != JoinFree {
		c.JoinLink = ""
	}
	return c
}
