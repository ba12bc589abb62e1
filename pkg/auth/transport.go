package auth

import (
	"net/http"

	"github.com/google/uuid"
)

const (
	tokenHeader     = "Authorization"
	tokenPrefix     = "Bearer "
	requestIDHeader = "X-Request-ID"
)

// Transport attaches the access token and a request id to every outgoing
// request.
type Transport struct {
	Token string
	Base  http.RoundTripper
}

// NewTransport wraps base, or http.DefaultTransport when base is nil.
func NewTransport(token string, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Token: token, Base: base}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if t.Token != "" && req.Header.Get(tokenHeader) == "" {
		req.Header.Set(tokenHeader, tokenPrefix+t.Token)
	}
	if req.Header.Get(requestIDHeader) == "" {
		req.Header.Set(requestIDHeader, uuid.NewString())
	}
	return t.Base.RoundTrip(req)
}
