// Package demotarget is a small coffee-cart checkout application used as a
// local load test target and as a fixture in tests.
package demotarget

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const sessionCookie = "cart_session"

// Options shapes the target's behaviour.
type Options struct {
	// ConfirmAfter is how many status polls an order stays pending.
	ConfirmAfter int
	// FailureRate is the probability (0..1) that a checkout returns 503.
	FailureRate float64
	// Latency delays every response.
	Latency time.Duration
}

type order struct {
	ID     string   `json:"order"`
	Status string   `json:"status"`
	Items  []string `json:"items"`
	polls  int
}

type cart struct {
	items []string
	order *order
}

// Server holds all carts in memory.
type Server struct {
	opts     Options
	mu       sync.Mutex
	carts    map[string]*cart
	next     int
	upgrader websocket.Upgrader
}

// New returns a Server ready to be mounted with Handler.
func New(opts Options) *Server {
	return &Server{opts: opts, carts: map[string]*cart{}}
}

// Handler routes the checkout journey.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.menu)
	mux.HandleFunc("POST /cart/add", s.addToCart)
	mux.HandleFunc("GET /cart", s.showCart)
	mux.HandleFunc("POST /checkout", s.checkout)
	mux.HandleFunc("GET /order/status", s.status)
	mux.HandleFunc("GET /ws/orders", s.orderUpdates)
	return s.delay(mux)
}

// Carts reports how many sessions were opened.
func (s *Server) Carts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}

func (s *Server) delay(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Latency > 0 {
			select {
			case <-time.After(s.opts.Latency):
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) menu(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.cart(r); !ok {
		s.mu.Lock()
		s.next++
		id := fmt.Sprintf("s%d", s.next)
		s.carts[id] = &cart{}
		s.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<html><body><h1>Coffee cart</h1><ul data-test="menu">`+
		`<li data-test="espresso">Espresso</li><li data-test="mocha">Mocha</li>`+
		`<li data-test="cappuccino">Cappuccino</li><li data-test="flat-white">Flat White</li>`+
		`</ul><button data-test="checkout">Checkout</button></body></html>`)
}

func (s *Server) cart(r *http.Request) (*cart, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ct, ok := s.carts[c.Value]
	return ct, ok
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	ct, ok := s.cart(r)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	item := strings.TrimSpace(r.URL.Query().Get("item"))
	if item == "" {
		http.Error(w, "missing item", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	ct.items = append(ct.items, item)
	n := len(ct.items)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"items": n})
}

func (s *Server) showCart(w http.ResponseWriter, r *http.Request) {
	ct, ok := s.cart(r)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	items := append([]string(nil), ct.items...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	ct, ok := s.cart(r)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("name") == "" || !strings.Contains(r.PostForm.Get("email"), "@") {
		http.Error(w, "name and a valid email are required", http.StatusBadRequest)
		return
	}
	if s.opts.FailureRate > 0 && rand.Float64() < s.opts.FailureRate {
		http.Error(w, "payment service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.mu.Lock()
	if len(ct.items) == 0 {
		s.mu.Unlock()
		http.Error(w, "cart is empty", http.StatusConflict)
		return
	}
	s.next++
	ct.order = &order{ID: fmt.Sprintf("o%d", s.next), Status: "pending", Items: ct.items}
	ct.items = nil
	resp := *ct.order
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ct, ok := s.cart(r)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	s.mu.Lock()
	o := ct.order
	if o == nil {
		s.mu.Unlock()
		http.Error(w, "no order", http.StatusNotFound)
		return
	}
	if id := r.URL.Query().Get("order"); id != "" && id != o.ID {
		s.mu.Unlock()
		http.Error(w, "unknown order", http.StatusNotFound)
		return
	}
	o.polls++
	if o.polls > s.opts.ConfirmAfter {
		o.Status = "confirmed"
	}
	resp := *o
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

// orderUpdates answers each order id sent over the socket with its status.
func (s *Server) orderUpdates(w http.ResponseWriter, r *http.Request) {
	ct, ok := s.cart(r)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.mu.Lock()
		reply := map[string]string{"order": string(msg), "status": "unknown"}
		if ct.order != nil && ct.order.ID == string(msg) {
			reply["status"] = ct.order.Status
		}
		s.mu.Unlock()
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
