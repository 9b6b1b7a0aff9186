package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/trip-tracking/internal/config"
	"github.com/example/trip-tracking/internal/dispatch"
	"github.com/example/trip-tracking/internal/events"
	"github.com/example/trip-tracking/internal/models"
	"github.com/example/trip-tracking/internal/observability"
	"github.com/example/trip-tracking/internal/room"
	"github.com/example/trip-tracking/internal/session"
	"github.com/example/trip-tracking/internal/tracker"
)

// Server owns the connection-facing surface: the websocket endpoint that
// speaks the event protocol, plus health, readiness and metrics.
type Server struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	registry *session.Registry
	coord    *room.Coordinator
	tracker  *tracker.Tracker
	ready    func(ctx context.Context) error
	mux      *mux.Router
}

// NewServer wires the handler around its injected collaborators. ready may be
// nil when there is no external transport to probe.
func NewServer(cfg config.ServerConfig, logger *slog.Logger, reg *session.Registry, coord *room.Coordinator, trk *tracker.Tracker, ready func(ctx context.Context) error) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		coord:    coord,
		tracker:  trk,
		ready:    ready,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			http.Error(w, "relay not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}

var upgrader = websocket.Upgrader{
	// clients connect from app webviews on arbitrary origins; identity is not
	// this layer's concern
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS runs one connection's lifecycle: upgrade, session creation, the
// read loop (which processes that connection's events strictly in order), and
// teardown through the coordinator on disconnect.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", 400)
		return
	}
	connID := uuid.NewString()
	sender := dispatch.NewWSSender(conn, s.cfg.WriteDeadline)
	sess := s.registry.Create(connID, sender)
	observability.ConnectionsActive.Inc()
	s.logger.Info("connection opened", "conn_id", connID, "remote_addr", remoteIP(r))

	defer func() {
		// the request context is gone once the handler unwinds; teardown gets
		// its own
		s.coord.LeaveRoom(context.Background(), sess)
		observability.ConnectionsActive.Dec()
		_ = conn.Close()
		s.logger.Info("connection closed", "conn_id", connID)
	}()

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "conn_id", connID, "error", err)
			}
			return
		}
		s.handleEvent(r.Context(), sess, env)
	}
}

func (s *Server) handleEvent(ctx context.Context, sess *session.Session, env events.Envelope) {
	switch env.Event {
	case events.EventJoinRoom:
		s.handleJoinRoom(ctx, sess, env)
	case events.EventUpdateLocation:
		s.handleUpdateLocation(ctx, sess, env)
	case events.EventDriverJoined:
		s.handleDriverJoined(ctx, sess, env)
	case events.EventDriverReached:
		s.handleDriverReached(ctx, sess, env)
	default:
		s.sendError(sess, "unknown event: "+env.Event)
	}
}

func (s *Server) handleJoinRoom(ctx context.Context, sess *session.Session, env events.Envelope) {
	var ev events.JoinRoom
	if err := env.Decode(&ev); err != nil {
		s.sendError(sess, room.ErrInvalidRequest.Error())
		return
	}
	// join locations are best-effort: a malformed one degrades to "no anchor"
	// rather than rejecting the admission, matching long-standing client
	// behavior
	var loc *models.Location
	if l, err := events.ParseLocation(ev.Location); err == nil {
		loc = &l
	}
	if err := s.coord.JoinRoom(ctx, sess, ev.TripID, ev.Role, ev.ParticipantID, loc); err != nil {
		s.sendError(sess, err.Error())
		return
	}
	if err := sess.Send(events.EventJoinedRoom, ev.TripID); err != nil {
		s.logger.Warn("joined-room ack failed", "conn_id", sess.ConnID, "error", err)
	}
}

func (s *Server) handleUpdateLocation(ctx context.Context, sess *session.Session, env events.Envelope) {
	var ev events.UpdateLocation
	if err := env.Decode(&ev); err != nil {
		s.sendError(sess, events.ErrInvalidLocation.Error())
		return
	}
	if err := s.tracker.UpdateLocation(ctx, sess, ev.DriverID, ev.Location); err != nil {
		s.sendError(sess, err.Error())
	}
}

func (s *Server) handleDriverJoined(ctx context.Context, sess *session.Session, env events.Envelope) {
	var ev events.DriverJoined
	if err := env.Decode(&ev); err != nil || ev.TripID == "" {
		s.sendError(sess, room.ErrInvalidRequest.Error())
		return
	}
	var loc *models.Location
	if l, err := events.ParseLocation(ev.Location); err == nil {
		loc = &l
	}
	err := s.coord.PublishNotification(ctx, ev.TripID, events.Notification{
		Type:           events.TypeDriverJoined,
		TripID:         ev.TripID,
		DriverID:       ev.DriverID,
		Message:        "Driver has joined",
		DriverLocation: loc,
	})
	if err != nil {
		s.sendError(sess, room.ErrRelayUnavailable.Error())
	}
}

func (s *Server) handleDriverReached(ctx context.Context, sess *session.Session, env events.Envelope) {
	var ev events.DriverReached
	if err := env.Decode(&ev); err != nil || ev.TripID == "" {
		s.sendError(sess, room.ErrInvalidRequest.Error())
		return
	}
	err := s.coord.PublishNotification(ctx, ev.TripID, events.Notification{
		Type:    events.TypeDriverReached,
		TripID:  ev.TripID,
		Message: "Driver has reached",
	})
	if err != nil {
		s.sendError(sess, room.ErrRelayUnavailable.Error())
		return
	}
	// the announcing driver detaches from the room; the connection stays open
	s.coord.Detach(ctx, sess)
}

func (s *Server) sendError(sess *session.Session, msg string) {
	if err := sess.Send(events.EventError, msg); err != nil {
		s.logger.Warn("error event send failed", "conn_id", sess.ConnID, "error", err)
	}
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
