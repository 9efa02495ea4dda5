package httpflow

import (
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/torosent/vuload/internal/metrics"
)

type sample struct {
	total time.Duration
	n     int
}

func (s *sample) add(d time.Duration) {
	s.total += d
	s.n++
}

// mean is nil when the phase never happened in this session.
func (s sample) mean() *float64 {
	if s.n == 0 {
		return nil
	}
	return metrics.Float(metrics.Millis(s.total) / float64(s.n))
}

// netStats accumulates connection timings across a session's requests.
// httptrace hooks may fire from dialer goroutines, hence the mutex.
type netStats struct {
	mu       sync.Mutex
	requests int
	dns      sample
	connect  sample
	ttfb     sample
}

func (st *netStats) clientTrace() *httptrace.ClientTrace {
	var (
		dnsStart   time.Time
		connStarts = map[string]time.Time{}
		wrote      time.Time
	)
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			st.mu.Lock()
			dnsStart = time.Now()
			st.mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			st.mu.Lock()
			defer st.mu.Unlock()
			if !dnsStart.IsZero() {
				st.dns.add(time.Since(dnsStart))
			}
		},
		ConnectStart: func(network, addr string) {
			st.mu.Lock()
			connStarts[network+addr] = time.Now()
			st.mu.Unlock()
		},
		ConnectDone: func(network, addr string, err error) {
			st.mu.Lock()
			defer st.mu.Unlock()
			if start, ok := connStarts[network+addr]; ok && err == nil {
				st.connect.add(time.Since(start))
			}
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			st.mu.Lock()
			wrote = time.Now()
			st.requests++
			st.mu.Unlock()
		},
		GotFirstResponseByte: func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			if !wrote.IsZero() {
				st.ttfb.add(time.Since(wrote))
			}
		},
	}
}

// snapshot averages the collected timings, or returns nil before the first
// request went out. Phases that never occurred stay nil.
func (st *netStats) snapshot() *metrics.NetworkMetrics {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.requests == 0 {
		return nil
	}
	n := &metrics.NetworkMetrics{
		Latency:       st.ttfb.mean(),
		DNSLookup:     st.dns.mean(),
		TCPConnection: st.connect.mean(),
	}
	if n.Empty() {
		return nil
	}
	return n
}

// record counts a round trip timed outside net/http, such as a WebSocket
// message exchange.
func (st *netStats) record(d time.Duration) {
	st.mu.Lock()
	st.requests++
	st.ttfb.add(d)
	st.mu.Unlock()
}
