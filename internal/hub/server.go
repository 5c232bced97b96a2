// Package hub serves parsed combats over HTTP and pushes store changes to
// websocket subscribers.
package hub

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ZehenForever/sto-log-parser/internal/engine"
	"github.com/ZehenForever/sto-log-parser/internal/logging"
)

const (
	defaultBucketSec  = 5
	defaultMaxBuckets = 120

	pingInterval = 20 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
)

type Options struct {
	View   engine.SnapshotOptions
	Logger logging.Interface
	Now    func() time.Time
}

type Server struct {
	store    *engine.Store
	opts     Options
	log      logging.Interface
	room     *room
	upgrader websocket.Upgrader

	unsubscribe func()
}

// NewServer subscribes to store. Call Close to detach.
func NewServer(store *engine.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		store: store,
		opts:  opts,
		log:   opts.Logger,
		room:  newRoom(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.unsubscribe = store.Subscribe(s.onStoreUpdate)
	return s
}

// Close stops forwarding store updates and disconnects every subscriber.
func (s *Server) Close() {
	s.unsubscribe()
	s.room.closeAll()
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.getWS)

	r.Route("/api/combats", func(r chi.Router) {
		r.Get("/", s.listCombats)
		r.Get("/{id}", s.getCombat)
		r.Get("/{id}/breakdown", s.getBreakdown)
		r.Get("/{id}/timeline", s.getTimeline)
	})
	return r
}

func (s *Server) onStoreUpdate(u engine.StoreUpdate) {
	view := s.opts.View
	view.SummaryOnly = true
	msg := StoreUpdateMessage{
		Type:    msgStoreUpdate,
		Version: u.Version,
		Kind:    u.Kind.String(),
		Combats: make([]engine.CombatView, 0, len(u.Combats)),
	}
	for _, c := range u.Combats {
		msg.Combats = append(msg.Combats, engine.BuildCombatView(c, view))
	}
	n := s.room.broadcastJSON(msgStoreUpdate, msg)
	s.log.Debugf("store v%d %s: %d combats sent to %d subscribers", u.Version, msg.Kind, len(msg.Combats), n)
}

// snapshot renders the store. lastHours > 0 keeps only combats that ended
// inside that window.
func (s *Server) snapshot(limit int, summaryOnly bool, lastHours float64) engine.Snapshot {
	view := s.opts.View
	if limit > 0 {
		view.LimitCombats = limit
	}
	view.SummaryOnly = summaryOnly
	now := s.opts.Now()
	combats := engine.FilterCombats(s.store.List(), engine.NewTimeFilterLastHours(lastHours, now))
	return engine.BuildSnapshot(now, s.store.Version(), combats, view)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Ok:          true,
		Version:     s.store.Version(),
		CombatCount: s.store.Len(),
		Subscribers: s.room.count(),
	})
}

func (s *Server) listCombats(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	hours, ok := queryFloat(w, r, "hours")
	if !ok {
		return
	}
	if hours < 0 {
		writeError(w, http.StatusBadRequest, "hours must not be negative")
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot(limit, queryBool(r, "summary"), hours))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*engine.Combat, bool) {
	id := chi.URLParam(r, "id")
	c, ok := s.store.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "combat not found")
		return nil, false
	}
	return c, true
}

func (s *Server) getCombat(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, engine.BuildCombatView(c, s.opts.View))
}

// getBreakdown takes the owner as a query parameter since internal ids carry
// spaces and brackets.
func (s *Server) getBreakdown(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner is required")
		return
	}
	view := s.opts.View
	if v := r.URL.Query().Get("combinePets"); v != "" {
		view.CombinePets = queryBool(r, "combinePets")
	}
	bd, found := engine.BuildBreakdown(c, owner, view)
	if !found {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, bd)
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookup(w, r)
	if !ok {
		return
	}
	bucketSec, ok := queryInt(w, r, "bucketSec", defaultBucketSec)
	if !ok {
		return
	}
	if bucketSec <= 0 {
		writeError(w, http.StatusBadRequest, "bucketSec must be positive")
		return
	}
	writeJSON(w, http.StatusOK, engine.BuildTimeline(c, int64(bucketSec), defaultMaxBuckets, queryBool(r, "players")))
}

func (s *Server) getWS(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("ws upgrade failed: err=%v", err)
		return
	}

	remote := r.RemoteAddr
	s.log.Infof("ws connect: remote=%s", remote)

	client := newWSClient(c)
	s.room.addSub(client, func() any {
		return SnapshotMessage{Type: msgSnapshot, Snapshot: s.snapshot(0, true, 0)}
	})

	_ = c.SetReadDeadline(time.Now().Add(readTimeout))
	c.SetPongHandler(func(string) error {
		_ = c.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go s.writePump(client)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			s.log.Debugf("ws read closed: remote=%s err=%v", remote, err)
			break
		}
	}

	s.room.removeSub(client)
	client.close()
	s.log.Infof("ws disconnect: remote=%s", remote)
}

func (s *Server) writePump(c *wsClient) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer func() {
		s.room.removeSub(c)
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Warnf("ws write failed: err=%v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debugf("ws ping failed: err=%v", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, key+" must be an integer")
		return 0, false
	}
	return n, true
}

func queryFloat(w http.ResponseWriter, r *http.Request, key string) (float64, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, key+" must be a number")
		return 0, false
	}
	return f, true
}

func queryBool(r *http.Request, key string) bool {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(key)))
	return v == "1" || v == "true" || v == "yes"
}
