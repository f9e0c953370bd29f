// Package model defines the domain types used across the application.
package model

import "time"

// Source is a watched origin channel whose posts are candidates for
// syndication. Exactly one Source exists per channel ID; inactive
// sources are excluded from the watch set at startup.
type Source struct {
	ChannelID   int64
	ChannelName string
	DisplayName string
	Bias        string
	Destination int64
	Invite      string
	Username    string
	AccountID   int64
	Description string
	Rating      int
	DetailID    int64
	IsSpread    bool
	IsActive    bool
}

// Display returns the read-optimized projection used by formatting and
// routing. The display name overrides the channel name when set.
func (s Source) Display() SourceDisplay {
	name := s.DisplayName
	if name == "" {
		name = s.ChannelName
	}
	return SourceDisplay{
		DisplayName: name,
		IsSpread:    s.IsSpread,
		Bias:        s.Bias,
		Invite:      s.Invite,
		Username:    s.Username,
		DetailID:    s.DetailID,
		Destination: s.Destination,
	}
}

// SourceDisplay is the projection of a Source consumed during message
// processing. It is derived, never persisted.
type SourceDisplay struct {
	DisplayName string
	IsSpread    bool
	Bias        string
	Invite      string
	Username    string
	DetailID    int64
	Destination int64
}

// Destination is a target channel that receives translated posts.
// Footer is an optional per-destination suffix appended after the
// source attribution.
type Destination struct {
	ChannelID int64
	Name      string
	GroupID   int64
	Footer    string
}

// Account holds the credentials for one bot session. Sources reference
// their owning account via AccountID.
type Account struct {
	ID          int64
	Name        string
	Token       string
	Description string
}

// Post is the durable record of a published message. The pair
// (SourceChannelID, SourceMessageID) is unique and acts as the
// idempotency key for create-vs-edit decisions.
type Post struct {
	Destination     int64
	MessageID       int
	SourceChannelID int64
	SourceMessageID int
	BackupID        int
	ReplyID         int // 0 when the post is not a reply
	MessageText     string
	FileID          string
	CreatedAt       time.Time
}
