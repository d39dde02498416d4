// Package signaling serves the WebSocket transport between consultation
// clients and the session coordinator
package signaling

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/navikt/telecoord/internal/auth"
	"github.com/navikt/telecoord/internal/config"
	"github.com/navikt/telecoord/internal/service"
	"github.com/navikt/telecoord/internal/utils"
	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"
)

// Handler upgrades HTTP requests to signaling connections
type Handler struct {
	coord    *service.Coordinator
	verifier auth.Verifier
	cfg      config.SessionConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]*Client
	wg      sync.WaitGroup
}

// NewHandler creates a signaling handler. A nil verifier trusts client-asserted identities.
func NewHandler(coord *service.Coordinator, verifier auth.Verifier, cfg config.SessionConfig) *Handler {
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 20
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 40
	}

	h := &Handler{
		coord:    coord,
		verifier: verifier,
		cfg:      cfg,
		clients:  make(map[string]*Client),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients do not send an Origin
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	log.Printf("Rejected signaling connection from origin %s", utils.SanitizeLogString(origin))
	return false
}

// ServeHTTP verifies the credential, if required, and starts the connection pumps
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var subject string
	if h.verifier != nil {
		token, err := auth.ExtractToken(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		subject, err = h.verifier.Verify(r.Context(), token)
		if errors.Is(err, auth.ErrBadToken) {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Printf("Token validation error: %v", err)
			http.Error(w, "Token validation failed", http.StatusServiceUnavailable)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		log.Printf("Error upgrading signaling connection: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		id:          ulid.Make().String(),
		conn:        conn,
		coord:       h.coord,
		limiter:     rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), h.cfg.MessageBurst),
		subject:     subject,
		ctx:         ctx,
		cancel:      cancel,
		send:        make(chan []byte, sendQueueSize),
		joinTimeout: h.cfg.JoinTimeout,
	}
	client.joinDeadline = time.Now().Add(h.cfg.JoinTimeout)
	client.joinTimer = time.AfterFunc(h.cfg.JoinTimeout, client.expireIfUnjoined)

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.wg.Add(1)

	log.Printf("Signaling connection opened: %s", client.id)

	go client.writePump()
	go client.readPump(func() {
		h.mu.Lock()
		delete(h.clients, client.id)
		h.mu.Unlock()
		log.Printf("Signaling connection closed: %s", client.id)
		h.wg.Done()
	})
}

// ClientCount returns the number of open connections
func (h *Handler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every connection and waits for them to finish or ctx to expire
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	for _, c := range h.clients {
		c.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
