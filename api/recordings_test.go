/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dialcoach/dialcoach/redact"
	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/storage"
	"github.com/dialcoach/dialcoach/testutil"
	"github.com/dialcoach/dialcoach/transcribe"
)

func (s *APITestSuite) createRecording() *storage.Recording {
	rec := &storage.Recording{
		ID:         uuid.NewString(),
		CompanyID:  s.company.ID,
		Title:      "Discovery call",
		StorageKey: "calls/discovery.ogg",
		UploadedBy: s.manager.ID,
		Status:     storage.RecordingStatusUploaded,
		CreatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.CreateRecording(context.Background(), rec))
	return rec
}

func (s *APITestSuite) storeTranscript(recordingID string) {
	transcript := &storage.Transcript{
		RecordingID: recordingID,
		Language:    "en",
		Words: []redact.Word{
			{Text: "my", StartOffsetMS: 0, EndOffsetMS: 400},
			{Text: "card", StartOffsetMS: 400, EndOffsetMS: 800},
			{Text: "is", StartOffsetMS: 800, EndOffsetMS: 1000},
			{Text: "4111-1111", StartOffsetMS: 1000, EndOffsetMS: 2000},
			{Text: "guaranteed", StartOffsetMS: 2000, EndOffsetMS: 2500},
			{Text: "returns", StartOffsetMS: 2500, EndOffsetMS: 3000},
		},
		Matches:   []redact.Match{{StartOffsetMS: 1000, EndOffsetMS: 2000}},
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.UpsertTranscript(context.Background(), transcript))
}

func (s *APITestSuite) TestCreateRecording() {
	reqData := createRecordingRequest{
		Title:      "Demo call",
		StorageKey: "calls/demo.ogg",
		DurationMS: 90000,
	}
	resp := s.doRequest(http.MethodPost, "/recordings", reqData, s.manager)
	s.Require().Equal(http.StatusCreated, resp.Code)

	var respData recordingResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().NotEmpty(respData.ID)
	s.Require().Equal("Demo call", respData.Title)
	s.Require().Equal(string(storage.RecordingStatusUploaded), respData.Status)
	s.Require().Equal(s.manager.ID, respData.UploadedBy)

	stored, err := s.store.GetRecording(context.Background(), s.company.ID, respData.ID)
	s.Require().NoError(err)
	s.Require().Equal("calls/demo.ogg", stored.StorageKey)
}

func (s *APITestSuite) TestCreateRecordingForbiddenForMember() {
	reqData := createRecordingRequest{Title: "Demo call", StorageKey: "calls/demo.ogg"}
	resp := s.doRequest(http.MethodPost, "/recordings", reqData, s.member)
	testutil.RequireErrorInRecorder(
		s.T(), resp, http.StatusForbidden, ErrorDomain, restapi.ErrCodeForbidden)
}

func (s *APITestSuite) TestCreateRecordingMissingFields() {
	resp := s.doRequest(http.MethodPost, "/recordings", createRecordingRequest{Title: "No key"}, s.manager)
	s.Require().Equal(http.StatusBadRequest, resp.Code)
}

func (s *APITestSuite) TestListRecordingsScopedToCompany() {
	rec := s.createRecording()

	otherCompany := &storage.Company{ID: uuid.NewString(), Name: "Rival", CreatedAt: time.Now()}
	s.Require().NoError(s.store.CreateCompany(context.Background(), otherCompany))
	outsider := s.createUser(otherCompany.ID, storage.RoleAdmin)

	resp := s.doRequest(http.MethodGet, "/recordings", nil, s.member)
	s.Require().Equal(http.StatusOK, resp.Code)
	var respData []*recordingResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Len(respData, 1)
	s.Require().Equal(rec.ID, respData[0].ID)

	resp = s.doRequest(http.MethodGet, "/recordings", nil, outsider)
	s.Require().Equal(http.StatusOK, resp.Code)
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Empty(respData)

	resp = s.doRequest(http.MethodGet, "/recordings/"+rec.ID, nil, outsider)
	testutil.RequireErrorInRecorder(
		s.T(), resp, http.StatusNotFound, ErrorDomain, restapi.ErrCodeNotFound)
}

func (s *APITestSuite) TestIngestTranscriptProviderPayload() {
	rec := s.createRecording()

	reqData := ingestTranscriptRequest{
		Language: "en",
		Words: []redact.Word{
			{Text: "hello", StartOffsetMS: 0, EndOffsetMS: 500},
			{Text: "world", StartOffsetMS: 500, EndOffsetMS: 1000},
		},
		Matches: []redact.Match{{StartOffsetMS: 500, EndOffsetMS: 1000}},
	}
	resp := s.doRequest(http.MethodPost, "/recordings/"+rec.ID+"/transcript", reqData, s.manager)
	s.Require().Equal(http.StatusNoContent, resp.Code)

	stored, err := s.store.GetRecording(context.Background(), s.company.ID, rec.ID)
	s.Require().NoError(err)
	s.Require().Equal(storage.RecordingStatusTranscribed, stored.Status)

	transcript, err := s.store.GetTranscript(context.Background(), rec.ID)
	s.Require().NoError(err)
	s.Require().Len(transcript.Words, 2)
	s.Require().Len(transcript.Matches, 1)
}

func (s *APITestSuite) TestIngestTranscriptTriggersTranscription() {
	rec := s.createRecording()
	s.transcriber.result = &transcribe.Result{
		Language: "en",
		Words: []redact.Word{
			{Text: "hi", StartOffsetMS: 0, EndOffsetMS: 300},
		},
	}

	reqData := ingestTranscriptRequest{AudioURL: "https://blobs.example/calls/discovery.ogg"}
	resp := s.doRequest(http.MethodPost, "/recordings/"+rec.ID+"/transcript", reqData, s.manager)
	s.Require().Equal(http.StatusAccepted, resp.Code)
	s.Require().Equal("https://blobs.example/calls/discovery.ogg", s.transcriber.submittedURL)

	var respData map[string]string
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Equal("job-1", respData["jobId"])

	// The background goroutine finishes the job and stores the transcript.
	s.Require().Eventually(func() bool {
		stored, err := s.store.GetRecording(context.Background(), s.company.ID, rec.ID)
		return err == nil && stored.Status == storage.RecordingStatusTranscribed
	}, 3*time.Second, 10*time.Millisecond)

	transcript, err := s.store.GetTranscript(context.Background(), rec.ID)
	s.Require().NoError(err)
	s.Require().Len(transcript.Words, 1)
}

func (s *APITestSuite) TestIngestTranscriptEmptyBody() {
	rec := s.createRecording()
	resp := s.doRequest(http.MethodPost, "/recordings/"+rec.ID+"/transcript", ingestTranscriptRequest{}, s.manager)
	s.Require().Equal(http.StatusBadRequest, resp.Code)
}

func (s *APITestSuite) TestGetTranscriptRedactsAndFlagsTerms() {
	rec := s.createRecording()
	s.storeTranscript(rec.ID)

	resp := s.doRequest(http.MethodGet, "/recordings/"+rec.ID+"/transcript", nil, s.member)
	s.Require().Equal(http.StatusOK, resp.Code)

	var respData transcriptResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Equal("my card is "+redact.Marker+" guaranteed returns", respData.Text)
	s.Require().Equal([]string{"guaranteed returns"}, respData.FlaggedTerms)
	s.Require().Equal("en", respData.Language)
}

func (s *APITestSuite) TestGetTranscriptNotFound() {
	rec := s.createRecording()
	resp := s.doRequest(http.MethodGet, "/recordings/"+rec.ID+"/transcript", nil, s.member)
	testutil.RequireErrorInRecorder(
		s.T(), resp, http.StatusNotFound, ErrorDomain, restapi.ErrCodeNotFound)
}

func (s *APITestSuite) TestGenerateFeedbackUsesRedactedText() {
	rec := s.createRecording()
	s.storeTranscript(rec.ID)

	resp := s.doRequest(http.MethodPost, "/recordings/"+rec.ID+"/feedback", nil, s.manager)
	s.Require().Equal(http.StatusOK, resp.Code)

	var respData feedbackResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Equal("Ask more discovery questions.", respData.Feedback)

	// The raw card number never reaches the LLM.
	s.Require().Contains(s.coach.gotTranscript, redact.Marker)
	s.Require().NotContains(s.coach.gotTranscript, "4111-1111")
}

func (s *APITestSuite) TestGenerateFeedbackForbiddenForMember() {
	rec := s.createRecording()
	s.storeTranscript(rec.ID)

	resp := s.doRequest(http.MethodPost, "/recordings/"+rec.ID+"/feedback", nil, s.member)
	testutil.RequireErrorInRecorder(
		s.T(), resp, http.StatusForbidden, ErrorDomain, restapi.ErrCodeForbidden)
}
