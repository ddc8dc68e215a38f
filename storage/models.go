/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package storage

import (
	"time"

	"github.com/dialcoach/dialcoach/redact"
)

// Role is a user's role within their company.
type Role string

// User roles.
const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleManager || r == RoleMember
}

// RecordingStatus tracks a recording through the transcription pipeline.
type RecordingStatus string

// Recording statuses.
const (
	RecordingStatusUploaded     RecordingStatus = "uploaded"
	RecordingStatusTranscribing RecordingStatus = "transcribing"
	RecordingStatusTranscribed  RecordingStatus = "transcribed"
	RecordingStatusFailed       RecordingStatus = "failed"
)

// AssignmentStatus tracks a training assignment.
type AssignmentStatus string

// Assignment statuses.
const (
	AssignmentStatusAssigned  AssignmentStatus = "assigned"
	AssignmentStatusCompleted AssignmentStatus = "completed"
)

// Company is a tenant. DenyTerms is the compliance deny list scanned
// against transcripts.
type Company struct {
	ID        string
	Name      string
	DenyTerms []string
	CreatedAt time.Time
}

// UserProfile is a user's row within a company. SessionToken is the opaque
// bearer token issued by the external auth provider.
type UserProfile struct {
	ID           string
	CompanyID    string
	Email        string
	Name         string
	Role         Role
	SessionToken string
	CreatedAt    time.Time
}

// Recording is call recording metadata. The audio blob itself lives in
// external object storage under StorageKey.
type Recording struct {
	ID         string
	CompanyID  string
	Title      string
	StorageKey string
	UploadedBy string
	Status     RecordingStatus
	DurationMS int64
	CreatedAt  time.Time
}

// Transcript is the provider's transcription result for one recording.
// Words and Matches are stored as JSON columns.
type Transcript struct {
	RecordingID  string
	Language     string
	Words        []redact.Word
	Matches      []redact.Match
	RedactedText string
	CreatedAt    time.Time
}

// TrainingAssignment assigns a training video or quiz to a user.
type TrainingAssignment struct {
	ID          string
	CompanyID   string
	UserID      string
	VideoID     string
	Title       string
	AssignedBy  string
	Status      AssignmentStatus
	DueAt       time.Time
	CompletedAt time.Time
	CreatedAt   time.Time
}

// ChatMessage is one message in a company's chat room.
type ChatMessage struct {
	ID        string
	CompanyID string
	UserID    string
	UserName  string
	Body      string
	CreatedAt time.Time
}
