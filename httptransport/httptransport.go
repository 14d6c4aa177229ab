// Package httptransport implements a transport that POSTs each message to an http endpoint.
package httptransport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/ramonsmits/qload/loader"
)

// HeaderPrefix is prepended to message header names on the request.
const HeaderPrefix = "X-Qload-"

// New returns a new http transport
func New() loader.Transport {
	return &Transport{}
}

// Transport is the http transport
type Transport struct {
	// Client sends the requests. http.DefaultClient is used when nil.
	Client *http.Client

	base    *url.URL
	method  string
	headers map[string]string
}

type options struct {
	// URL is the endpoint base. The destination is appended as the last path segment.
	URL string `mapstructure:"url"`
	// ConnectionString is used as URL when URL is not set.
	ConnectionString string `mapstructure:"connection-string"`
	// Method sets the http method. (Default: POST).
	Method string `mapstructure:"method"`
	// Headers are added to every request.
	Headers map[string]string `mapstructure:"headers"`
}

// Start satisfies the loader.Starter interface
func (t *Transport) Start(ctx context.Context, raw map[string]interface{}) error {

	var config options
	if err := mapstructure.Decode(raw, &config); err != nil {
		return errors.WithStack(err)
	}
	if config.URL == "" {
		config.URL = config.ConnectionString
	}
	if config.URL == "" {
		return errors.New("url is required, set the url transport option or QLOAD_CONNECTION_STRING")
	}
	base, err := url.Parse(config.URL)
	if err != nil {
		return errors.WithStack(err)
	}
	if config.Method == "" {
		config.Method = http.MethodPost
	}

	t.base = base
	t.method = config.Method
	t.headers = config.Headers
	return nil
}

// Send satisfies the loader.Transport interface
func (t *Transport) Send(ctx context.Context, msg loader.Message, destination string) error {

	request, err := http.NewRequestWithContext(ctx, t.method, t.endpoint(destination), bytes.NewReader(msg.Body))
	if err != nil {
		return errors.WithStack(err)
	}
	for k, v := range t.headers {
		request.Header.Add(k, v)
	}
	for k, v := range msg.Headers {
		request.Header.Set(HeaderPrefix+k, v)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}

	response, err := client.Do(request)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return loader.Transient(errors.WithStack(err))
		}
		return errors.WithStack(err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body) // drain so the connection is reused

	return statusError(response.StatusCode)
}

func (t *Transport) endpoint(destination string) string {
	u := *t.base
	u.RawPath = strings.TrimSuffix(t.base.EscapedPath(), "/") + "/" + url.PathEscape(destination)
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + destination
	return u.String()
}

// statusError treats throttling and server errors as transient, and any other non 2xx status as
// fatal.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return loader.Transient(errors.Errorf("status %d", code))
	default:
		return errors.Errorf("status %d", code)
	}
}
