/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/dialcoach/dialcoach/config"
	"github.com/dialcoach/dialcoach/redact"
)

type StoreTestSuite struct {
	suite.Suite
	store   *Store
	ctx     context.Context
	company *Company
	user    *UserProfile
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) SetupTest() {
	cfg := NewDefaultConfig()
	cfg.Path = ":memory:"
	cfg.BusyTimeout = config.TimeDuration(time.Second)
	store, err := Open(cfg)
	s.Require().NoError(err)
	s.store = store
	s.ctx = context.Background()

	s.company = &Company{
		ID:        uuid.NewString(),
		Name:      "Acme Sales",
		DenyTerms: []string{"guaranteed returns"},
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.CreateCompany(s.ctx, s.company))

	s.user = &UserProfile{
		ID:           uuid.NewString(),
		CompanyID:    s.company.ID,
		Email:        "rep@acme.example",
		Name:         "Sales Rep",
		Role:         RoleMember,
		SessionToken: "tok-" + uuid.NewString(),
		CreatedAt:    time.Now(),
	}
	s.Require().NoError(s.store.CreateUserProfile(s.ctx, s.user))
}

func (s *StoreTestSuite) TearDownTest() {
	s.Require().NoError(s.store.Close())
}

func (s *StoreTestSuite) TestGetCompany() {
	got, err := s.store.GetCompany(s.ctx, s.company.ID)
	s.Require().NoError(err)
	s.Require().Equal(s.company.Name, got.Name)
	s.Require().Equal(s.company.DenyTerms, got.DenyTerms)

	_, err = s.store.GetCompany(s.ctx, "missing")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestGetUserProfileBySessionToken() {
	got, err := s.store.GetUserProfileBySessionToken(s.ctx, s.user.SessionToken)
	s.Require().NoError(err)
	s.Require().Equal(s.user.ID, got.ID)
	s.Require().Equal(RoleMember, got.Role)

	_, err = s.store.GetUserProfileBySessionToken(s.ctx, "bogus")
	s.Require().ErrorIs(err, ErrNotFound)
	_, err = s.store.GetUserProfileBySessionToken(s.ctx, "")
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *StoreTestSuite) TestRecordingLifecycle() {
	rec := &Recording{
		ID:         uuid.NewString(),
		CompanyID:  s.company.ID,
		Title:      "Discovery call",
		StorageKey: "recordings/abc.mp3",
		UploadedBy: s.user.ID,
		Status:     RecordingStatusUploaded,
		DurationMS: 183000,
		CreatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.CreateRecording(s.ctx, rec))

	got, err := s.store.GetRecording(s.ctx, s.company.ID, rec.ID)
	s.Require().NoError(err)
	s.Require().Equal(rec.Title, got.Title)
	s.Require().Equal(RecordingStatusUploaded, got.Status)

	// Another tenant must not see the recording.
	_, err = s.store.GetRecording(s.ctx, "other-company", rec.ID)
	s.Require().ErrorIs(err, ErrNotFound)

	s.Require().NoError(s.store.UpdateRecordingStatus(s.ctx, s.company.ID, rec.ID, RecordingStatusTranscribed))
	got, err = s.store.GetRecording(s.ctx, s.company.ID, rec.ID)
	s.Require().NoError(err)
	s.Require().Equal(RecordingStatusTranscribed, got.Status)

	list, err := s.store.ListRecordings(s.ctx, s.company.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
}

func (s *StoreTestSuite) TestTranscriptUpsert() {
	rec := &Recording{
		ID: uuid.NewString(), CompanyID: s.company.ID, Title: "Call",
		StorageKey: "k", UploadedBy: s.user.ID, Status: RecordingStatusUploaded, CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.CreateRecording(s.ctx, rec))

	tr := &Transcript{
		RecordingID: rec.ID,
		Language:    "en",
		Words: []redact.Word{
			{Text: "hello", StartOffsetMS: 0, EndOffsetMS: 300},
			{Text: "John", StartOffsetMS: 300, EndOffsetMS: 600},
		},
		Matches:   []redact.Match{{StartOffsetMS: 300, EndOffsetMS: 600}},
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.UpsertTranscript(s.ctx, tr))

	got, err := s.store.GetTranscript(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Equal(tr.Words, got.Words)
	s.Require().Equal(tr.Matches, got.Matches)

	tr.RedactedText = "hello [redacted]"
	s.Require().NoError(s.store.UpsertTranscript(s.ctx, tr))
	got, err = s.store.GetTranscript(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().Equal("hello [redacted]", got.RedactedText)
}

func (s *StoreTestSuite) TestAssignments() {
	a := &TrainingAssignment{
		ID:         uuid.NewString(),
		CompanyID:  s.company.ID,
		UserID:     s.user.ID,
		VideoID:    "video-7",
		Title:      "Objection handling",
		AssignedBy: "admin-1",
		Status:     AssignmentStatusAssigned,
		DueAt:      time.Now().Add(72 * time.Hour),
		CreatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.CreateAssignment(s.ctx, a))

	list, err := s.store.ListAssignments(s.ctx, s.company.ID, s.user.ID)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Require().Equal(AssignmentStatusAssigned, list[0].Status)
	s.Require().True(list[0].CompletedAt.IsZero())

	list, err = s.store.ListAssignments(s.ctx, s.company.ID, "someone-else")
	s.Require().NoError(err)
	s.Require().Empty(list)

	completedAt := time.Now()
	s.Require().NoError(s.store.CompleteAssignment(s.ctx, s.company.ID, a.ID, completedAt))
	got, err := s.store.GetAssignment(s.ctx, s.company.ID, a.ID)
	s.Require().NoError(err)
	s.Require().Equal(AssignmentStatusCompleted, got.Status)
	s.Require().Equal(completedAt.UnixMilli(), got.CompletedAt.UnixMilli())

	s.Require().ErrorIs(s.store.CompleteAssignment(s.ctx, "other-company", a.ID, completedAt), ErrNotFound)
}

func (s *StoreTestSuite) TestChatMessages() {
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		msg := &ChatMessage{
			ID:        uuid.NewString(),
			CompanyID: s.company.ID,
			UserID:    s.user.ID,
			UserName:  s.user.Name,
			Body:      "message",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		s.Require().NoError(s.store.InsertChatMessage(s.ctx, msg))
	}

	messages, err := s.store.ListRecentChatMessages(s.ctx, s.company.ID, 3)
	s.Require().NoError(err)
	s.Require().Len(messages, 3)
	// Chronological order, most recent window.
	s.Require().True(messages[0].CreatedAt.Before(messages[1].CreatedAt))
	s.Require().True(messages[1].CreatedAt.Before(messages[2].CreatedAt))
}

func TestOpenInvalidPath(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Path = "/nonexistent-dir/sub/never.db"
	_, err := Open(cfg)
	require.Error(t, err)
}
