/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type testAssignmentData struct {
	UserID  string `json:"userId"`
	VideoID string `json:"videoId"`
}

func makeJSONRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/assignments", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", ContentTypeAppJSON)
	return req
}

func TestDecodeRequestJSON(t *testing.T) {
	var data testAssignmentData
	err := DecodeRequestJSON(makeJSONRequest(t, `{"userId": "u-1", "videoId": "v-1"}`), &data)
	require.NoError(t, err)
	require.Equal(t, testAssignmentData{UserID: "u-1", VideoID: "v-1"}, data)
}

func TestDecodeRequestJSONMalformed(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "empty body", body: "", wantCode: http.StatusBadRequest},
		{name: "broken json", body: `{"userId": `, wantCode: http.StatusBadRequest},
		{name: "wrong field type", body: `{"userId": 42}`, wantCode: http.StatusBadRequest},
		{name: "multiple objects", body: `{"userId": "u-1"}{"userId": "u-2"}`, wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var data testAssignmentData
			err := DecodeRequestJSON(makeJSONRequest(t, tt.body), &data)
			var reqErr *MalformedRequestError
			require.ErrorAs(t, err, &reqErr)
			require.Equal(t, tt.wantCode, reqErr.HTTPStatusCode)
		})
	}
}

func TestDecodeRequestJSONUnsupportedContentType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/assignments", bytes.NewBufferString("<xml/>"))
	req.Header.Set("Content-Type", "application/xml")

	var data testAssignmentData
	err := DecodeRequestJSON(req, &data)
	var reqErr *MalformedRequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusUnsupportedMediaType, reqErr.HTTPStatusCode)
}

func TestDecodeRequestJSONTooLargeBody(t *testing.T) {
	req := makeJSONRequest(t, `{"userId": "u-1", "videoId": "v-1"}`)
	SetRequestMaxBodySize(httptest.NewRecorder(), req, 8)

	var data testAssignmentData
	err := DecodeRequestJSON(req, &data)
	var reqErr *MalformedRequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusRequestEntityTooLarge, reqErr.HTTPStatusCode)
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, http.StatusForbidden, NewError("dialcoach", ErrCodeForbidden, ErrMessageForbidden), nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, ContentTypeAppJSON, rec.Header().Get("Content-Type"))
	require.JSONEq(t,
		`{"error": {"domain": "dialcoach", "code": "forbidden", "message": "Operation is not allowed for the current role."}}`,
		rec.Body.String())
}
