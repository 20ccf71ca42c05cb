// Package stream is the HTTP surface: the websocket snapshot stream, the
// synchronous state read, action submission, and health.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fleetfeast.ai/internal/protocol"
	"fleetfeast.ai/internal/sim/city"
)

// Pinger reports shared-state store reachability for /healthz.
type Pinger interface {
	Ping() error
}

type Server struct {
	world *city.World
	log   *logrus.Entry

	// store may be nil when running queue-in-memory.
	store Pinger

	// stateWriteFails is owned by the state writer in cmd/server; the
	// health endpoint only reads it.
	stateWriteFails *atomic.Int64

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(w *city.World, store Pinger, writeFails *atomic.Int64, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	return &Server{
		world:           w,
		store:           store,
		stateWriteFails: writeFails,
		log:             logger.WithField("component", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// StreamHandler upgrades to a websocket and forwards every published
// snapshot. A slow reader only ever loses its own oldest unread snapshot;
// the simulation loop is never blocked by a subscriber.
func (s *Server) StreamHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub protocol.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != protocol.TypeSubscribe || sub.ProtocolVersion != protocol.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sid := fmt.Sprintf("O%d", s.nextID.Add(1))
		out := make(chan []byte, 8)

		select {
		case s.world.SubscriberJoinC() <- city.SubscriberJoin{ID: sid, Out: out}:
		default:
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy"), time.Now().Add(time.Second))
			return
		}
		defer func() {
			select {
			case s.world.SubscriberLeaveC() <- sid:
			default:
				// World loop is stopping; nothing else to do.
			}
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Seed the new observer with the current state so it does not wait
		// a full tick for its first picture of the city.
		if b := s.world.LatestJSON(); b != nil {
			select {
			case out <- b:
			default:
			}
		}

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-out:
					if !ok {
						writeErr <- nil
						return
					}
					env := protocol.SnapshotMsg{
						Type:            protocol.TypeSnapshot,
						ProtocolVersion: protocol.Version,
						Data:            json.RawMessage(b),
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteJSON(env); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: the stream is one-way, but reading keeps pings
		// flowing and detects the peer going away.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// StateHandler returns the latest published snapshot document.
func (s *Server) StateHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		b := s.world.LatestJSON()
		if b == nil {
			http.Error(rw, "no state published yet", http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(b)
	}
}

// ActionsHandler accepts one action per request. Forecast is answered
// synchronously and never enqueued; everything else becomes exactly one
// queue entry consumed at the next tick boundary.
func (s *Server) ActionsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, 64*1024))
		if err != nil {
			writeSubmit(rw, http.StatusBadRequest, protocol.SubmitResponse{
				Code: protocol.ErrProtoBadRequest, Message: "unreadable body",
			})
			return
		}
		if err := protocol.ValidateAction(body); err != nil {
			writeSubmit(rw, http.StatusBadRequest, protocol.SubmitResponse{
				Code: protocol.ErrProtoBadRequest, Message: err.Error(),
			})
			return
		}

		var a city.PendingAction
		if err := json.Unmarshal(body, &a); err != nil {
			writeSubmit(rw, http.StatusBadRequest, protocol.SubmitResponse{
				Code: protocol.ErrProtoBadRequest, Message: err.Error(),
			})
			return
		}

		if a.Type == city.ActionForecast {
			hours := a.HoursAhead
			if hours <= 0 {
				hours = 1
			}
			tick := s.world.CurrentTick()
			hourly, err := s.world.Forecast(a.ZoneID, hours)
			if err != nil {
				writeSubmit(rw, http.StatusUnprocessableEntity, protocol.SubmitResponse{
					Code: protocol.ErrUnknownZone, Message: err.Error(),
				})
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(protocol.ForecastResponse{
				ZoneID:       a.ZoneID,
				FromTick:     tick,
				HourlyOrders: hourly,
			})
			return
		}

		a.ID = uuid.NewString()
		if err := s.world.Queue().Enqueue(a); err != nil {
			s.log.WithError(err).Warn("enqueue failed")
			writeSubmit(rw, http.StatusServiceUnavailable, protocol.SubmitResponse{
				Code: protocol.ErrStoreUnavailable, Message: "action queue unavailable",
			})
			return
		}
		writeSubmit(rw, http.StatusAccepted, protocol.SubmitResponse{Accepted: true, ID: a.ID})
	}
}

// HealthHandler reports loop liveness and store reachability. Persistent
// snapshot-write failure shows up here long before it fails a request.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		resp := protocol.HealthResponse{Status: "ok", Store: "ok"}
		status := http.StatusOK
		if s.store != nil {
			if err := s.store.Ping(); err != nil {
				resp.Status = "degraded"
				resp.Store = "unreachable"
				resp.Error = err.Error()
				status = http.StatusServiceUnavailable
			}
		} else {
			resp.Store = "memory"
		}
		if s.stateWriteFails != nil {
			resp.SnapshotWriteFail = int(s.stateWriteFails.Load())
			if resp.SnapshotWriteFail > 0 && resp.Status == "ok" {
				resp.Status = "degraded"
			}
		}
		rw.Header().Set("Content-Type", "application/json")
		rw.WriteHeader(status)
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func writeSubmit(rw http.ResponseWriter, status int, resp protocol.SubmitResponse) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(resp)
}
