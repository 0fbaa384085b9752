package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/sstrand/matchpoint/internal/controller"
	"github.com/sstrand/matchpoint/internal/projection"
	"github.com/sstrand/matchpoint/internal/syncproto"
)

// writeTimeout bounds one instant websocket send. A peer that cannot
// take a frame in this window loses it; the durable slot covers them.
const writeTimeout = 3 * time.Second

// peerBuffer is the per-peer outbox depth. Sends beyond it are dropped,
// not queued - snapshots are wholesale so only the last one matters.
const peerBuffer = 8

// Server is the phone-side relay: it owns the durable context slot and
// the set of currently connected peers, and it registers itself as the
// controller's snapshot listener.
type Server struct {
	ctrl    *controller.Controller
	slot    *ContextSlot
	metrics *Metrics

	mu    sync.Mutex
	peers map[*peer]struct{}
}

type peer struct {
	out    chan []byte
	closed bool
}

// NewServer wires a relay server to the controller. Must be called
// before the controller's Run loop starts (listener registration).
func NewServer(ctrl *controller.Controller) *Server {
	s := &Server{
		ctrl:    ctrl,
		slot:    NewContextSlot(),
		metrics: NewMetrics(),
		peers:   make(map[*peer]struct{}),
	}
	ctrl.OnSnapshot(s.deliver)
	return s
}

// Routes builds the HTTP surface: match creation, the websocket
// channel, the durable context fetch, a debug state dump, health, and
// metrics.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/match", s.handleStartMatch)
	r.Get("/ws", s.handleWS)
	r.Get("/context", s.handleContext)
	r.Get("/state", s.handleState)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", s.metrics.Handler())
	return r
}

// deliver is the controller's snapshot listener: called on the owner
// goroutine after every mutation. It must not block - peer delivery is
// a buffered enqueue, and the durable write is a mutex-guarded copy.
func (s *Server) deliver(state projection.State) {
	payload, err := syncproto.EncodeSnapshot(syncproto.SnapshotFromState(state))
	if err != nil {
		slog.Error("encode snapshot", "error", err)
		return
	}

	// Durable slot is written unconditionally, reachable peer or not.
	s.slot.Set(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	for p := range s.peers {
		s.sendLocked(p, payload)
	}
}

// sendLocked enqueues a payload for one peer, dropping on a full
// outbox. No retry: recovery is the durable slot plus requestSync.
func (s *Server) sendLocked(p *peer, payload []byte) {
	if p.closed {
		return
	}
	select {
	case p.out <- payload:
		s.metrics.SnapshotsSent.Inc()
	default:
		s.metrics.SendsDropped.Inc()
		slog.Warn("dropping snapshot for slow peer")
	}
}

// sendTo enqueues a payload for one peer (targeted replies).
func (s *Server) sendTo(p *peer, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendLocked(p, payload)
}

func (s *Server) addPeer(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p] = struct{}{}
}

func (s *Server) removePeer(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.peers[p]; !ok {
		return
	}
	delete(s.peers, p)
	p.closed = true
	close(p.out)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	p := &peer{out: make(chan []byte, peerBuffer)}
	s.addPeer(p)
	defer s.removePeer(p)

	slog.Info("peer connected", "remote", r.RemoteAddr)

	// Writer goroutine: drains the outbox onto the socket.
	writeCtx, writeCancel := context.WithCancel(r.Context())
	defer writeCancel()
	go func() {
		for payload := range p.out {
			ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				slog.Warn("instant send failed", "error", err)
			}
			cancel()
		}
	}()

	// Reader loop: inbound commands from the peer.
	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					slog.Info("peer read ended", "error", err)
				}
			}
			return
		}

		s.handleInbound(p, data)
	}
}

// handleInbound decodes and dispatches one payload from a peer.
// Malformed payloads are discarded whole; unknown commands are logged
// and ignored.
func (s *Server) handleInbound(p *peer, data []byte) {
	msg, err := syncproto.Decode(data)
	if err != nil {
		s.metrics.MalformedPayloads.Inc()
		slog.Warn("discarding inbound payload", "error", err)
		return
	}

	switch msg.Kind {
	case syncproto.KindCommand:
		s.metrics.CommandsReceived.Inc()
		s.handleCommand(p, msg.Command)

	default:
		// Only the authoritative side emits snapshots/confirmations.
		slog.Warn("ignoring non-command payload from peer", "kind", fmt.Sprintf("%d", msg.Kind))
	}
}

func (s *Server) handleCommand(p *peer, cmd syncproto.Command) {
	if cmd == syncproto.CmdRequestSync {
		// Targeted full snapshot for a (re)connected peer.
		state, err := s.ctrl.Snapshot()
		if err != nil {
			slog.Warn("requestSync: snapshot unavailable", "error", err)
			return
		}
		payload, err := syncproto.EncodeSnapshot(syncproto.SnapshotFromState(state))
		if err != nil {
			slog.Error("requestSync: encode snapshot", "error", err)
			return
		}
		s.sendTo(p, payload)
		return
	}

	err := s.ctrl.HandleRemote(cmd)
	if err != nil {
		// Invalid-context commands are no-ops; the peer recovers from
		// the next snapshot or its own timeout.
		return
	}

	if cmd == syncproto.CmdHighlight {
		// Fast-path confirmation so the watch can release its pending
		// action without waiting for full snapshot delivery.
		state, err := s.ctrl.Snapshot()
		if err != nil {
			return
		}
		payload, err := syncproto.EncodeConfirmation(len(state.HighlightClips))
		if err != nil {
			slog.Error("encode confirmation", "error", err)
			return
		}
		s.sendTo(p, payload)
	}
}

// startMatchRequest is the POST /match body.
type startMatchRequest struct {
	Name      string `json:"name"`
	PlayerOne string `json:"player_one"`
	PlayerTwo string `json:"player_two"`
}

// handleStartMatch begins a new match. Scoring commands arrive over the
// websocket channel; match creation stays an HTTP call so the paired
// device (or a curl) can bring a served match up without a UI layer.
func (s *Server) handleStartMatch(w http.ResponseWriter, r *http.Request) {
	var req startMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.PlayerOne == "" || req.PlayerTwo == "" {
		http.Error(w, "both player names are required", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		req.Name = req.PlayerOne + " vs " + req.PlayerTwo
	}

	if err := s.ctrl.StartMatch(req.Name, req.PlayerOne, req.PlayerTwo); err != nil {
		if errors.Is(err, controller.ErrMatchActive) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	state, err := s.ctrl.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(state)
}

func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	payload, version, ok := s.slot.Get()
	if !ok {
		http.Error(w, "no context", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Context-Version", fmt.Sprintf("%d", version))
	_, _ = w.Write(payload)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.ctrl.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(state)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
