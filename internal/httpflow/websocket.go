package httpflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/torosent/vuload/internal/tracing"
	"github.com/torosent/vuload/internal/workflow"
)

const handshakeTimeout = 30 * time.Second

// exchange dials the step URL, sends its message and reads replies until one
// satisfies the step condition. Without a message or condition a successful
// handshake is enough. The connection never outlives the step.
func (s *Session) exchange(ctx context.Context, step workflow.Step) (*page, error) {
	target, err := s.resolve(step.URL)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.Name, err)
	}
	wsURL, err := websocketURL(target)
	if err != nil {
		return nil, fmt.Errorf("step %q: %w", step.Name, err)
	}

	header := http.Header{}
	for k, v := range step.Headers {
		header.Set(k, s.substitute(v))
	}
	if s.propagate {
		tracing.InjectHTTPHeaders(ctx, header)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		Jar:              s.jar,
	}

	start := time.Now()
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			s.last = &page{step: step.Name, method: "WS", url: wsURL, status: resp.StatusCode, contentType: resp.Header.Get("Content-Type")}
			return nil, fmt.Errorf("step %q: websocket dial failed with status %d: %w", step.Name, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("step %q: websocket dial failed: %w", step.Name, err)
	}
	defer closeWebSocket(conn)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}

	p := &page{step: step.Name, method: "WS", url: wsURL, status: resp.StatusCode, contentType: "websocket"}
	s.last = p
	if step.Message != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(s.substitute(step.Message))); err != nil {
			return nil, fmt.Errorf("step %q: write message: %w", step.Name, err)
		}
	}

	awaiting := step.Message != "" || step.Text != "" || step.JSONPath != ""
	for awaiting {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("step %q: no matching message before timeout: %w", step.Name, ctx.Err())
			}
			return nil, fmt.Errorf("step %q: read message: %w", step.Name, err)
		}
		if int64(len(data)) > s.maxBody {
			data = data[:s.maxBody]
		}
		p.body = data
		if ok, _ := matches(step, data); ok {
			break
		}
	}
	s.stats.record(time.Since(start))
	s.trace(step, p, time.Since(start))
	return p, nil
}

func websocketURL(target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func closeWebSocket(conn *websocket.Conn) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	_ = conn.Close()
}
