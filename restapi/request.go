/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// RequestBodyTooLargeError is returned when the number of read body bytes exceeds the configured limit.
type RequestBodyTooLargeError struct {
	MaxSizeBytes uint64
	Err          error
}

// Error returns a string representation of RequestBodyTooLargeError.
func (e *RequestBodyTooLargeError) Error() string {
	return e.Err.Error()
}

type limitedBodyReader struct {
	io.ReadCloser
	maxSizeBytes uint64
}

func (r *limitedBodyReader) Read(p []byte) (n int, err error) {
	n, err = r.ReadCloser.Read(p)

	// http.maxBytesReader reports the overflow with a plain errors.New
	// (https://github.com/golang/go/issues/30715), so the message is all
	// there is to match on.
	if err != nil && err.Error() == "http: request body too large" {
		err = &RequestBodyTooLargeError{r.maxSizeBytes, err}
	}

	return n, err
}

// SetRequestMaxBodySize wraps the request body with a reader that limits the number of bytes to read.
// Reading past maxSizeBytes yields RequestBodyTooLargeError.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = &limitedBodyReader{
		ReadCloser:   http.MaxBytesReader(w, r.Body, int64(maxSizeBytes)),
		maxSizeBytes: maxSizeBytes,
	}
}

// DecodeRequestJSON reads the request body and decodes it as a single JSON object into dst.
// Client mistakes (wrong content type, broken JSON, wrong field types, trailing data,
// too large body) come back as *MalformedRequestError carrying the HTTP status to respond with.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if err := checkJSONContentType(r); err != nil {
		return err
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return malformedRequestErrorFromDecodeError(err)
	}

	// The decoder happily reads streams of JSON objects; a request must contain exactly one.
	if decoder.More() {
		return &MalformedRequestError{
			http.StatusBadRequest,
			"Request body must only contain a single JSON object.",
		}
	}

	return nil
}

func checkJSONContentType(r *http.Request) error {
	reqContentType := r.Header.Get("Content-Type")
	if reqContentType == "" {
		return nil
	}
	contentType, _, err := mime.ParseMediaType(reqContentType)
	if err != nil {
		return &MalformedRequestError{
			http.StatusUnsupportedMediaType,
			fmt.Sprintf("failed to parse Content-Type header for request: %s", err),
		}
	}
	if contentType != ContentTypeAppJSON {
		return &MalformedRequestError{
			http.StatusUnsupportedMediaType,
			fmt.Sprintf("Content-Type %q is not supported.", contentType),
		}
	}
	return nil
}

func malformedRequestErrorFromDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var tooLargeErr *RequestBodyTooLargeError

	switch {
	case errors.Is(err, io.EOF):
		return &MalformedRequestError{
			http.StatusBadRequest,
			"Request body must not be empty.",
		}

	case errors.Is(err, io.ErrUnexpectedEOF):
		return &MalformedRequestError{
			http.StatusBadRequest,
			"Request body contains badly-formed JSON.",
		}

	case errors.As(err, &syntaxErr):
		return &MalformedRequestError{
			http.StatusBadRequest,
			fmt.Sprintf("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset),
		}

	case errors.As(err, &unmarshalTypeErr):
		if unmarshalTypeErr.Field != "" {
			return &MalformedRequestError{
				http.StatusBadRequest,
				fmt.Sprintf("Request body contains an invalid value for the %q field (at position %d).",
					unmarshalTypeErr.Field, unmarshalTypeErr.Offset),
			}
		}
		return &MalformedRequestError{
			http.StatusBadRequest,
			fmt.Sprintf("Request body contains an invalid value of type %q for the field of type %s.",
				unmarshalTypeErr.Value, unmarshalTypeErr.Type.String()),
		}

	case errors.As(err, &tooLargeErr):
		return NewTooLargeMalformedRequestError(tooLargeErr.MaxSizeBytes)

	default:
		return err
	}
}
