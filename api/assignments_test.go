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

	"github.com/dialcoach/dialcoach/restapi"
	"github.com/dialcoach/dialcoach/storage"
	"github.com/dialcoach/dialcoach/testutil"
)

func (s *APITestSuite) createAssignment(userID string) *storage.TrainingAssignment {
	assignment := &storage.TrainingAssignment{
		ID:         uuid.NewString(),
		CompanyID:  s.company.ID,
		UserID:     userID,
		VideoID:    "video-objections",
		Title:      "Handling objections",
		AssignedBy: s.manager.ID,
		Status:     storage.AssignmentStatusAssigned,
		CreatedAt:  time.Now(),
	}
	s.Require().NoError(s.store.CreateAssignment(context.Background(), assignment))
	return assignment
}

func (s *APITestSuite) TestCreateAssignment() {
	dueAt := time.Now().Add(7 * 24 * time.Hour).UTC().Truncate(time.Millisecond)
	reqData := createAssignmentRequest{
		UserID:  s.member.ID,
		VideoID: "video-objections",
		Title:   "Handling objections",
		DueAt:   &dueAt,
	}
	resp := s.doRequest(http.MethodPost, "/assignments", reqData, s.manager)
	s.Require().Equal(http.StatusCreated, resp.Code)

	var respData assignmentResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Equal(s.member.ID, respData.UserID)
	s.Require().Equal(string(storage.AssignmentStatusAssigned), respData.Status)
	s.Require().Equal(s.manager.ID, respData.AssignedBy)
	s.Require().NotNil(respData.DueAt)
}

func (s *APITestSuite) TestCreateAssignmentForbiddenForMember() {
	reqData := createAssignmentRequest{UserID: s.member.ID, VideoID: "video-objections"}
	resp := s.doRequest(http.MethodPost, "/assignments", reqData, s.member)
	testutil.RequireErrorInRecorder(
		s.T(), resp, http.StatusForbidden, ErrorDomain, restapi.ErrCodeForbidden)
}

func (s *APITestSuite) TestCreateAssignmentForOtherCompanyUser() {
	otherCompany := &storage.Company{ID: uuid.NewString(), Name: "Rival", CreatedAt: time.Now()}
	s.Require().NoError(s.store.CreateCompany(context.Background(), otherCompany))
	outsider := s.createUser(otherCompany.ID, storage.RoleMember)

	reqData := createAssignmentRequest{UserID: outsider.ID, VideoID: "video-objections"}
	resp := s.doRequest(http.MethodPost, "/assignments", reqData, s.manager)
	testutil.RequireErrorInRecorder(
		s.T(), resp, http.StatusNotFound, ErrorDomain, restapi.ErrCodeNotFound)
}

func (s *APITestSuite) TestListAssignmentsMemberSeesOnlyOwn() {
	own := s.createAssignment(s.member.ID)
	s.createAssignment(s.manager.ID)

	resp := s.doRequest(http.MethodGet, "/assignments", nil, s.member)
	s.Require().Equal(http.StatusOK, resp.Code)

	var respData []*assignmentResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Len(respData, 1)
	s.Require().Equal(own.ID, respData[0].ID)
}

func (s *APITestSuite) TestListAssignmentsManagerSeesCompanyAndFilters() {
	own := s.createAssignment(s.member.ID)
	s.createAssignment(s.manager.ID)

	resp := s.doRequest(http.MethodGet, "/assignments", nil, s.manager)
	s.Require().Equal(http.StatusOK, resp.Code)
	var respData []*assignmentResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Len(respData, 2)

	resp = s.doRequest(http.MethodGet, "/assignments?userId="+s.member.ID, nil, s.manager)
	s.Require().Equal(http.StatusOK, resp.Code)
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Len(respData, 1)
	s.Require().Equal(own.ID, respData[0].ID)
}

func (s *APITestSuite) TestMemberCompletesOwnAssignment() {
	assignment := s.createAssignment(s.member.ID)

	reqData := updateAssignmentRequest{Status: "completed"}
	resp := s.doRequest(http.MethodPatch, "/assignments/"+assignment.ID, reqData, s.member)
	s.Require().Equal(http.StatusOK, resp.Code)

	var respData assignmentResponse
	s.Require().NoError(json.Unmarshal(resp.Body.Bytes(), &respData))
	s.Require().Equal(string(storage.AssignmentStatusCompleted), respData.Status)
	s.Require().NotNil(respData.CompletedAt)

	stored, err := s.store.GetAssignment(context.Background(), s.company.ID, assignment.ID)
	s.Require().NoError(err)
	s.Require().Equal(storage.AssignmentStatusCompleted, stored.Status)
}

func (s *APITestSuite) TestMemberCannotCompleteOthersAssignment() {
	assignment := s.createAssignment(s.manager.ID)

	reqData := updateAssignmentRequest{Status: "completed"}
	resp := s.doRequest(http.MethodPatch, "/assignments/"+assignment.ID, reqData, s.member)
	testutil.RequireErrorInRecorder(
		s.T(), resp, http.StatusForbidden, ErrorDomain, restapi.ErrCodeForbidden)
}

func (s *APITestSuite) TestManagerCompletesAnyCompanyAssignment() {
	assignment := s.createAssignment(s.member.ID)

	reqData := updateAssignmentRequest{Status: "completed"}
	resp := s.doRequest(http.MethodPatch, "/assignments/"+assignment.ID, reqData, s.manager)
	s.Require().Equal(http.StatusOK, resp.Code)
}

func (s *APITestSuite) TestUpdateAssignmentInvalidStatus() {
	assignment := s.createAssignment(s.member.ID)

	reqData := updateAssignmentRequest{Status: "started"}
	resp := s.doRequest(http.MethodPatch, "/assignments/"+assignment.ID, reqData, s.member)
	s.Require().Equal(http.StatusBadRequest, resp.Code)
}
