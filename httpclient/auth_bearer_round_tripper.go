/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package httpclient

import (
	"context"
	"fmt"
	"net/http"
)

// AuthProvider supplies bearer tokens for outgoing requests.
type AuthProvider interface {
	GetToken(ctx context.Context) (string, error)
}

// AuthProviderFunc adapts a function to the AuthProvider interface.
type AuthProviderFunc func(ctx context.Context) (string, error)

// GetToken implements AuthProvider.
func (f AuthProviderFunc) GetToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken returns an AuthProvider that always yields the same token,
// e.g. an API key from configuration.
func StaticToken(token string) AuthProvider {
	return AuthProviderFunc(func(context.Context) (string, error) { return token, nil })
}

// AuthBearerRoundTripperError is returned by AuthBearerRoundTripper.RoundTrip
// when a token cannot be obtained; the request was never sent.
type AuthBearerRoundTripperError struct {
	Inner error
}

func (e *AuthBearerRoundTripperError) Error() string {
	return fmt.Sprintf("auth bearer round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *AuthBearerRoundTripperError) Unwrap() error {
	return e.Inner
}

// AuthBearerRoundTripper implements http.RoundTripper interface
// and sets Authorization HTTP header in all outgoing requests.
type AuthBearerRoundTripper struct {
	Delegate     http.RoundTripper
	AuthProvider AuthProvider
}

// NewAuthBearerRoundTripper creates a new AuthBearerRoundTripper.
func NewAuthBearerRoundTripper(delegate http.RoundTripper, authProvider AuthProvider) *AuthBearerRoundTripper {
	return &AuthBearerRoundTripper{delegate, authProvider}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *AuthBearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		defer func() {
			_ = req.Body.Close() // Per RoundTripper contract.
		}()
	}
	if req.Header.Get("Authorization") != "" {
		return rt.Delegate.RoundTrip(req)
	}
	token, err := rt.AuthProvider.GetToken(req.Context())
	if err != nil {
		return nil, &AuthBearerRoundTripperError{Inner: err}
	}
	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	return rt.Delegate.RoundTrip(req)
}
