package gcstransport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ramonsmits/qload/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestSend(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("Unexpected authorization: %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/a" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	tr := New().(*Transport)
	tr.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"})
	require.NoError(t, tr.Start(context.Background(), map[string]interface{}{"url": ts.URL}))
	require.NoError(t, tr.Send(context.Background(), loader.Message{Body: []byte("abc")}, "a"))
}

func TestStart_requiresURL(t *testing.T) {
	tr := New().(*Transport)
	tr.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "token"})
	err := tr.Start(context.Background(), map[string]interface{}{})
	assert.Error(t, err)
}
