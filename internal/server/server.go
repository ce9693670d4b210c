// Package server is the dashboard side of the fuel meter: it serves the web
// pages, pushes the record for the open page after every metering cycle and
// accepts the save/clear commands.
package server

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/fuelmeter/internal/logger"
	"github.com/shaunagostinho/fuelmeter/internal/meter"
)

// Meter is what the server needs from the metering engine.
type Meter interface {
	Period() time.Duration
	Ready() <-chan struct{}
	Snapshot() (meter.Snapshot, bool)
	Load(st meter.Store) error
	SaveOverwrite(st meter.Store) (meter.Stored, error)
	SaveAdd(st meter.Store) (meter.Stored, error)
	Clear() error
	DeleteStored(st meter.Store) error
}

// Publisher receives every snapshot, e.g. the Redis mirror.
type Publisher interface {
	Publish(ctx context.Context, s meter.Snapshot) error
}

// Server broadcasts metering records to WebSocket clients.
type Server struct {
	cfg    *Config
	meter  Meter
	store  meter.Store
	webFS  fs.FS
	logger *logger.Logger
	pub    Publisher // may be nil

	pageMu sync.RWMutex
	page   string

	hub      *hub
	upgrader websocket.Upgrader
}

// New creates a new Server. pub may be nil.
func New(cfg *Config, m Meter, st meter.Store, pub Publisher, webFS fs.FS) *Server {
	return &Server{
		cfg:     cfg,
		meter:   m,
		store:   st,
		webFS:   webFS,
		pub:     pub,
		logger:  logger.New(cfg.Logging),
		hub:     newHub(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/stored", s.handleStored)
	return mux
}

// Run starts the HTTP server and the record loop. It returns when ctx is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	go s.recordLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Page returns the page the dashboard has open.
func (s *Server) Page() string {
	s.pageMu.RLock()
	defer s.pageMu.RUnlock()
	return s.page
}

func (s *Server) setPage(page string) {
	s.pageMu.Lock()
	s.page = page
	s.pageMu.Unlock()
	log.Printf("[ws] open page: %s", page)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}
	detach := s.hub.attach(conn)

	go func() {
		defer detach()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleMessage(data)
		}
	}()
}

// handleMessage applies one dashboard command. Failures are logged only.
func (s *Server) handleMessage(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[ws] bad message %q: %v", data, err)
		return
	}

	switch msg.Type {
	case "page_open":
		if msg.Page == "" {
			log.Printf("[ws] page_open without a page")
			return
		}
		s.setPage(msg.Page)
		if msg.Page == PageFuel {
			s.sendStored()
		}
	case "save_overwrite":
		if _, err := s.meter.SaveOverwrite(s.store); err != nil {
			log.Printf("[ws] save_overwrite: %v", err)
		}
		s.sendStored()
	case "save_add":
		if _, err := s.meter.SaveAdd(s.store); err != nil {
			log.Printf("[ws] save_add: %v", err)
		}
		s.sendStored()
	case "clear":
		if err := s.meter.Clear(); err != nil {
			log.Printf("[ws] clear: %v", err)
		}
	case "delete":
		if err := s.meter.DeleteStored(s.store); err != nil {
			log.Printf("[ws] delete: %v", err)
		}
		s.sendStored()
	case "load":
		if err := s.meter.Load(s.store); err != nil {
			log.Printf("[ws] load: %v", err)
		}
	default:
		log.Printf("[ws] unknown message type %q", msg.Type)
	}
}

func (s *Server) storedJSON() ([]byte, error) {
	return storedValsJSON(meter.ReadStored(s.store))
}

func (s *Server) sendStored() {
	data, err := s.storedJSON()
	if err != nil {
		log.Printf("[ws] stored_vals: %v", err)
		return
	}
	s.hub.broadcast(data)
}

func writeJSON(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Printf("[server] response: %v", err)
	}
}

func (s *Server) handleStored(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := s.storedJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, data)
}

// handleConfig serves the config on GET and applies a partial JSON update on
// POST. Accepted updates are saved to disk; logging follows the new setting
// immediately, everything else on restart.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, data)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err := s.cfg.UpdateFromJSON(body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.cfg.Save(); err != nil {
		log.Printf("[config] save failed: %v", err)
	}
	s.logger.SetEnabled(s.cfg.LoggingEnabled())
	writeJSON(w, []byte(`{"status":"ok"}`))
}

// recordLoop waits for each completed cycle and forwards it. A cycle that
// does not complete within one period is logged and waited for again.
func (s *Server) recordLoop(ctx context.Context) {
	defer s.logger.Close()
	period := s.meter.Period()
	timer := time.NewTimer(period)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			log.Printf("[server] warning: no metering cycle within %v", period)
		case <-s.meter.Ready():
			if !timer.Stop() {
				<-timer.C
			}
			s.forward(ctx)
		}
		timer.Reset(period)
	}
}

// forward delivers the latest snapshot to the log, the publisher and the
// open page.
func (s *Server) forward(ctx context.Context) {
	snap, ok := s.meter.Snapshot()
	if !ok {
		log.Printf("[server] warning: snapshot lock timed out, skipping cycle")
		return
	}

	s.logger.Record(snap)

	if s.pub != nil {
		pubCtx, cancel := context.WithTimeout(ctx, s.meter.Period())
		if err := s.pub.Publish(pubCtx, snap); err != nil {
			log.Printf("[server] publish: %v", err)
		}
		cancel()
	}

	if rec := recordFor(s.Page(), snap); rec != "" {
		s.hub.broadcast([]byte(rec))
	}
}
