package auth

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// HTTPClient returns a client that authorizes every request with ts.
// ts is consulted on every request, so invalidation takes effect immediately.
func HTTPClient(ts oauth2.TokenSource, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}
}

// NewDriveService creates a Drive client authorized by ts. Extra options
// (endpoint overrides in tests) are appended.
func NewDriveService(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*drive.Service, error) {
	all := append([]option.ClientOption{option.WithHTTPClient(HTTPClient(ts, nil))}, opts...)
	return drive.NewService(ctx, all...)
}
