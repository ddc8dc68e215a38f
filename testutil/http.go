/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type errorRespData struct {
	Domain string `json:"domain"`
	Code   string `json:"code"`
}

type wrappedErrorRespData struct {
	Error errorRespData `json:"error"`
}

// RequireErrorInRecorder asserts that passing httptest.ResponseRecorder contains error.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse asserts that passing http.Response contains the error.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireNoErrorInRecorder asserts that passing httptest.ResponseRecorder doesn't contain error.
func RequireNoErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, resp.Code)
	require.NotEqual(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
}

func requireErrorInResponse(
	t require.TestingT, respCode int, respHeader http.Header, respBody io.Reader,
	wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, respCode)
	require.Equal(t, contentTypeAppJSON, respHeader.Get("Content-Type"))
	var respData wrappedErrorRespData
	require.NoError(t, json.NewDecoder(respBody).Decode(&respData))
	require.Equal(t, wantErrDomain, respData.Error.Domain)
	require.Equal(t, wantErrCode, respData.Error.Code)
}
