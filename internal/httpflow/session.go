package httpflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/vuload/internal/feeder"
	"github.com/torosent/vuload/internal/metrics"
	"github.com/torosent/vuload/internal/tracing"
	"github.com/torosent/vuload/internal/workflow"
)

const defaultPollInterval = 250 * time.Millisecond

// StatusError reports a response whose status did not match the step.
type StatusError struct {
	Step string
	URL  string
	Got  int
	Want int
}

func (e *StatusError) Error() string {
	if e.Want > 0 {
		return fmt.Sprintf("step %q: %s returned status %d, want %d", e.Step, e.URL, e.Got, e.Want)
	}
	return fmt.Sprintf("step %q: %s returned status %d", e.Step, e.URL, e.Got)
}

// page is the last response a session observed.
type page struct {
	step        string
	method      string
	url         string
	status      int
	contentType string
	body        []byte
}

// Session is one virtual user's execution context. It is not safe for
// concurrent use.
type Session struct {
	user      int
	mode      metrics.Mode
	base      *url.URL
	jar       *cookiejar.Jar
	transport *http.Transport
	client    *http.Client
	record    feeder.Record
	vars      feeder.Record
	maxBody   int64
	propagate bool
	log       logrus.FieldLogger

	last  *page
	stats netStats
}

// Execute performs one attempt of step.
func (s *Session) Execute(ctx context.Context, step workflow.Step) error {
	var (
		p   *page
		err error
	)
	switch step.Action {
	case workflow.ActionNavigate:
		p, err = s.send(ctx, step, methodOr(step.Method, http.MethodGet), nil, "")
	case workflow.ActionClick:
		p, err = s.send(ctx, step, methodOr(step.Method, http.MethodGet), nil, "")
	case workflow.ActionFill:
		body, contentType := s.formBody(step)
		p, err = s.send(ctx, step, methodOr(step.Method, http.MethodPost), body, contentType)
	case workflow.ActionWait:
		p, err = s.wait(ctx, step)
	case workflow.ActionWebSocket:
		p, err = s.exchange(ctx, step)
	default:
		return fmt.Errorf("step %q: unsupported action %q", step.Name, step.Action)
	}
	if err != nil {
		return err
	}
	return s.extract(step, p)
}

func methodOr(method, fallback string) string {
	if method == "" {
		return fallback
	}
	return strings.ToUpper(method)
}

func (s *Session) substitute(v string) string {
	return feeder.Substitute(v, s.vars, s.record)
}

func (s *Session) resolve(raw string) (string, error) {
	u, err := url.Parse(s.substitute(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if s.base != nil {
		u = s.base.ResolveReference(u)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("url %q is not absolute and the workflow has no base_url", raw)
	}
	return u.String(), nil
}

func (s *Session) formBody(step workflow.Step) (io.Reader, string) {
	if len(step.Form) > 0 {
		values := url.Values{}
		for k, v := range step.Form {
			values.Set(k, s.substitute(v))
		}
		return strings.NewReader(values.Encode()), "application/x-www-form-urlencoded"
	}
	body := s.substitute(step.Body)
	contentType := "text/plain; charset=utf-8"
	if trimmed := strings.TrimSpace(body); strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		contentType = "application/json"
	}
	return strings.NewReader(body), contentType
}

func (s *Session) send(ctx context.Context, step workflow.Step, method string, body io.Reader, contentType string) (*page, error) {
	target, err := s.resolve(step.URL)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.Name, err)
	}
	p, err := s.do(ctx, step, method, target, body, contentType)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(step, p); err != nil {
		return nil, err
	}
	if ok, err := matches(step, p.body); !ok {
		return nil, fmt.Errorf("step %q: %w", step.Name, err)
	}
	return p, nil
}

func (s *Session) do(ctx context.Context, step workflow.Step, method, target string, body io.Reader, contentType string) (*page, error) {
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, s.stats.clientTrace()), method, target, body)
	if err != nil {
		return nil, fmt.Errorf("step %q: build request: %w", step.Name, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range step.Headers {
		req.Header.Set(k, s.substitute(v))
	}
	if s.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("step %q: %s %s: %w", step.Name, method, target, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBody))
	if err != nil {
		return nil, fmt.Errorf("step %q: read response: %w", step.Name, err)
	}
	p := &page{
		step:        step.Name,
		method:      method,
		url:         resp.Request.URL.String(),
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        data,
	}
	s.last = p
	s.trace(step, p, time.Since(start))
	return p, nil
}

// trace echoes each request; headed sessions surface it at info level.
func (s *Session) trace(step workflow.Step, p *page, elapsed time.Duration) {
	entry := s.log.WithFields(logrus.Fields{
		"step":       step.Name,
		"action":     string(step.Action),
		"method":     p.method,
		"url":        p.url,
		"status":     p.status,
		"elapsed_ms": metrics.Millis(elapsed),
	})
	if s.mode == metrics.ModeHeaded {
		entry.Info("Step request")
		return
	}
	entry.Debug("Step request")
}

func checkStatus(step workflow.Step, p *page) error {
	if step.Status > 0 {
		if p.status != step.Status {
			return &StatusError{Step: step.Name, URL: p.url, Got: p.status, Want: step.Status}
		}
		return nil
	}
	if p.status >= http.StatusBadRequest {
		return &StatusError{Step: step.Name, URL: p.url, Got: p.status}
	}
	return nil
}

// wait polls the step URL, or the last page when the step has none, until
// its condition holds or ctx expires.
func (s *Session) wait(ctx context.Context, step workflow.Step) (*page, error) {
	target := ""
	switch {
	case step.URL != "":
		u, err := s.resolve(step.URL)
		if err != nil {
			return nil, fmt.Errorf("step %q: %w", step.Name, err)
		}
		target = u
	case s.last != nil:
		target = s.last.url
	default:
		return nil, fmt.Errorf("step %q: nothing to wait on", step.Name)
	}
	interval := step.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	timer := time.NewTimer(0)
	defer timer.Stop()
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, fmt.Errorf("step %q: condition not met before timeout: %w", step.Name, lastErr)
		case <-timer.C:
		}

		p, err := s.do(ctx, step, methodOr(step.Method, http.MethodGet), target, nil, "")
		if err == nil {
			err = checkStatus(step, p)
		}
		if err == nil {
			var ok bool
			if ok, err = matches(step, p.body); ok {
				return p, nil
			}
		}
		lastErr = err
		timer.Reset(interval)
	}
}

// Diagnostic snapshots the last response the session saw.
func (s *Session) Diagnostic(ctx context.Context) (*metrics.Diagnostic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.last == nil {
		return nil, fmt.Errorf("no response captured yet")
	}
	attrs := map[string]string{
		"user":   strconv.Itoa(s.user),
		"step":   s.last.step,
		"method": s.last.method,
	}
	if s.base != nil {
		if cookies := s.jar.Cookies(s.base); len(cookies) > 0 {
			attrs["cookies"] = strconv.Itoa(len(cookies))
		}
	}
	return &metrics.Diagnostic{
		URL:         s.last.url,
		StatusCode:  s.last.status,
		Markup:      string(bytes.ToValidUTF8(s.last.body, []byte("?"))),
		ContentType: s.last.contentType,
		Attributes:  attrs,
	}, nil
}

// Telemetry reports averaged network timings. Browser telemetry is never
// available over plain HTTP.
func (s *Session) Telemetry() (*metrics.BrowserMetrics, *metrics.NetworkMetrics) {
	return nil, s.stats.snapshot()
}

// Variables returns a copy of the values extracted so far.
func (s *Session) Variables() map[string]string {
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// Close releases the session's pooled connections.
func (s *Session) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}
