// Package httpflow executes workflows over plain HTTP and WebSocket. Each
// virtual user gets an isolated session with its own connection pool, cookie
// jar and variable scope, standing in for a fresh browser context.
package httpflow

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/vuload/internal/feeder"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/workflow"
)

// Options tunes an Executor.
type Options struct {
	// Feeder supplies one record per session for {{field}} placeholders.
	Feeder feeder.Feeder
	// Propagate injects W3C trace context headers into every request.
	Propagate bool
	// MaxBodyBytes caps how much of each response is kept for conditions,
	// extractors and diagnostics.
	MaxBodyBytes int64
	Logger       logrus.FieldLogger
}

const defaultMaxBodyBytes = 1 << 20

// Executor opens HTTP sessions for a single workflow.
type Executor struct {
	base *url.URL
	opts Options
}

// New returns an executor for wf. Relative step URLs resolve against the
// workflow's base_url.
func New(wf *workflow.Workflow, opts Options) (*Executor, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow cannot be nil")
	}
	var base *url.URL
	if wf.BaseURL != "" {
		u, err := url.Parse(wf.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		base = u
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		opts.Logger = l
	}
	return &Executor{base: base, opts: opts}, nil
}

// Open creates an isolated session for user.
func (e *Executor) Open(ctx context.Context, user int, mode metrics.Mode) (workflow.Session, error) {
	var record feeder.Record
	if e.opts.Feeder != nil {
		rec, err := e.opts.Feeder.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("next feeder record: %w", err)
		}
		record = rec
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	transport := newTransport()
	return &Session{
		user:      user,
		mode:      mode,
		base:      e.base,
		jar:       jar,
		transport: transport,
		client:    &http.Client{Transport: transport, Jar: jar},
		record:    record,
		vars:      feeder.Record{},
		maxBody:   e.opts.MaxBodyBytes,
		propagate: e.opts.Propagate,
		log:       e.opts.Logger.WithField("user", user),
	}, nil
}

// newTransport builds a per-session transport so users never share
// connections. Timeouts come from the step context instead of the client.
func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
