package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/geobroker/internal/broker"
	"github.com/shaunagostinho/geobroker/internal/logger"
	"github.com/shaunagostinho/geobroker/internal/position"
)

// Server bridges WebSocket clients to the position broker. Each client
// speaks the command protocol (getLocation, addWatch, watchBestPosition,
// clearWatch, forceStop, pause, resume) and receives callback-keyed
// responses as the broker resolves them.
type Server struct {
	cfg    *Config
	broker *broker.Broker
	fixLog *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	id   string // scopes this connection's watch ids inside the broker
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool

	watches map[string]struct{} // client-visible watch ids
}

// New creates a new Server and wires the fix logger into the broker.
func New(cfg *Config, b *broker.Broker) *Server {
	s := &Server{
		cfg:     cfg,
		broker:  b,
		fixLog:  logger.New(cfg.Logging),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	b.SetHook(func(kind string, f position.Fix) {
		s.fixLog.Record(kind, f)
	})
	return s
}

// Handler returns the HTTP mux (exported for tests).
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/status", s.handleStatus)
	return mux
}

// Run starts the HTTP server and blocks until it stops.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
		s.fixLog.Close()
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		id:      uuid.NewString(),
		conn:    conn,
		send:    make(chan []byte, 64),
		watches: make(map[string]struct{}),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client %s connected (%d total)", client.id, total)

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine
	go func() {
		defer s.dropClient(client)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleCommand(client, data)
		}
	}()
}

// dropClient removes a disconnected client and clears any watches it
// still holds in the broker. Broker callbacks that fire afterwards hit
// the closed flag and go nowhere.
func (s *Server) dropClient(c *wsClient) {
	s.clientsMu.Lock()
	delete(s.clients, c)
	total := len(s.clients)
	s.clientsMu.Unlock()

	c.mu.Lock()
	watches := make([]string, 0, len(c.watches))
	for id := range c.watches {
		watches = append(watches, id)
	}
	c.watches = make(map[string]struct{})
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()

	for _, id := range watches {
		s.broker.ClearWatch(c.scoped(id))
	}

	log.Printf("[ws] client %s disconnected (%d total)", c.id, total)
}

// push queues a message for the client, dropping it if the client is
// gone or too slow to drain its buffer.
func (c *wsClient) push(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// scoped prefixes a client-visible watch id with the connection id so
// two clients reusing "watch1" never collide inside the broker.
func (c *wsClient) scoped(id string) string {
	return c.id + ":" + id
}

func (c *wsClient) trackWatch(id string) {
	c.mu.Lock()
	c.watches[id] = struct{}{}
	c.mu.Unlock()
}

func (c *wsClient) untrackWatch(id string) {
	c.mu.Lock()
	delete(c.watches, id)
	c.mu.Unlock()
}

func (s *Server) handleCommand(c *wsClient, data []byte) {
	cmd, err := ParseCommand(data)
	if err != nil {
		log.Printf("[ws] client %s: %v", c.id, err)
		c.push(encodeResponse(response{Status: "error", Message: err.Error()}))
		return
	}

	switch cmd.Action {
	case "getLocation":
		cbID := cmd.CallbackID
		s.broker.GetLocation(cmd.EnableHighAccuracy,
			time.Duration(cmd.MaximumAge)*time.Millisecond,
			time.Duration(cmd.Timeout)*time.Millisecond,
			func(f *position.Fix, e *position.Error) {
				c.push(resultResponse(cbID, "", f, e, false))
			})

	case "addWatch":
		id := cmd.ID
		c.trackWatch(id)
		s.broker.AddWatch(c.scoped(id), cmd.EnableHighAccuracy,
			func(f *position.Fix, e *position.Error) {
				c.push(resultResponse("", id, f, e, true))
			})

	case "clearWatch":
		c.untrackWatch(cmd.ID)
		s.broker.ClearWatch(c.scoped(cmd.ID))
		c.push(encodeResponse(response{ID: cmd.ID, Status: "ok"}))

	case "watchBestPosition":
		cbID := cmd.CallbackID
		s.broker.WatchBestPosition(func(f *position.Fix, e *position.Error) {
			c.push(resultResponse(cbID, "", f, e, true))
		})

	case "forceStop":
		c.mu.Lock()
		c.watches = make(map[string]struct{})
		c.mu.Unlock()
		s.broker.ForceStop()
		c.push(encodeResponse(response{Status: "ok"}))

	case "pause":
		s.broker.OnPause()
		c.push(encodeResponse(response{Status: "ok"}))

	case "resume":
		s.broker.OnResume()
		c.push(encodeResponse(response{Status: "ok"}))
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		s.fixLog.SetEnabled(s.cfg.Logging.Enabled)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// statusReply is the /api/status payload.
type statusReply struct {
	Available bool `json:"available"`
	Clients   int  `json:"clients"`
	Logging   bool `json:"logging"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}

	s.clientsMu.RLock()
	clients := len(s.clients)
	s.clientsMu.RUnlock()

	reply := statusReply{
		Available: s.broker.Available(),
		Clients:   clients,
		Logging:   s.fixLog.IsEnabled(),
	}
	data, err := json.Marshal(reply)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
