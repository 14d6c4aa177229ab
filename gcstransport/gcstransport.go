// Package gcstransport implements an http transport with automatic Google Cloud authentication,
// for endpoints such as Cloud Run or Cloud Functions that accept pushed messages.
package gcstransport

import (
	"context"

	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/httptransport"
	"github.com/ramonsmits/qload/loader"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Scope requested for the default credentials.
const Scope = "https://www.googleapis.com/auth/cloud-platform"

// New returns a new gcs transport
func New() loader.Transport {
	return &Transport{}
}

// Transport is an httptransport.Transport whose client adds Google credentials.
type Transport struct {
	httptransport.Transport
	// TokenSource overrides the default credentials.
	TokenSource oauth2.TokenSource
}

// Start satisfies the loader.Starter interface
func (t *Transport) Start(ctx context.Context, options map[string]interface{}) error {
	src := t.TokenSource
	if src == nil {
		// notest
		var err error
		src, err = google.DefaultTokenSource(ctx, Scope)
		if err != nil {
			return errors.Wrap(err, "loading default credentials")
		}
	}
	// the client outlives ctx, which only covers startup
	t.Client = oauth2.NewClient(context.Background(), src)
	return t.Transport.Start(ctx, options)
}
