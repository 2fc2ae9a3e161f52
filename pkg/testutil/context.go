package testutil

import (
	"net/http"

	id "chaintrail/pkg/domain"
	"chaintrail/pkg/requestcontext"
)

// WithCaller stamps the request with an authenticated ledger address, the way
// the identity middleware would for a valid bearer token.
func WithCaller(req *http.Request, addr id.Address) *http.Request {
	return req.WithContext(requestcontext.WithCaller(req.Context(), addr))
}

// WithRole stamps the request with a declared role.
func WithRole(req *http.Request, role id.Role) *http.Request {
	return req.WithContext(requestcontext.WithRole(req.Context(), role))
}

// WithRequestID stamps the request with a correlation id.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
