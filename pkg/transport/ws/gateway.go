/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ws is the websocket gateway: it accepts wallet connections,
// frames request/acknowledgement exchanges on named channels and delivers
// server-initiated push events to individual sessions.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/tonomy-foundation/communication-go/pkg/comerr"
	"github.com/tonomy-foundation/communication-go/pkg/internal/metrics"
)

var logger = log.New("communication/ws")

// Request channels. Every request receives exactly one acknowledgement
// carrying a status code and either details or an error.
const (
	ChannelLogin  = "v1/login"
	ChannelRelay  = "v1/message/relay"
	ChannelSwap   = "v1/swap/token"
	ChannelFaucet = "v1/faucet/token"
)

const sendTimeout = 10 * time.Second

// Relayer is the slice of the relay core the gateway drives.
type Relayer interface {
	Login(ctx context.Context, sessionID, raw string) (bool, error)
	Relay(ctx context.Context, sessionID, raw string) error
	Disconnect(sessionID string)
}

// Swapper executes swap and faucet requests. May be absent when the
// bridge is not configured.
type Swapper interface {
	SwapToBase(ctx context.Context, sessionID, raw string) (map[string]interface{}, error)
	RequestFaucet(ctx context.Context, sessionID, raw string) (map[string]interface{}, error)
}

// Config carries the gateway settings.
type Config struct {
	// RateLimit and RateBurst bound the request rate of one session.
	// Zero disables limiting.
	RateLimit float64
	RateBurst int
}

type request struct {
	ID      string  `json:"id"`
	Channel string  `json:"channel"`
	Payload payload `json:"payload"`
}

type payload struct {
	Message string `json:"message"`
}

type ack struct {
	ID      string      `json:"id"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type push struct {
	Channel string      `json:"channel"`
	Payload interface{} `json:"payload"`
}

type session struct {
	id      string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *session) write(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.conn.Write(ctx, websocket.MessageText, data)
}

// Gateway serves the websocket endpoint and implements relay.Sender.
type Gateway struct {
	relay Relayer
	swap  Swapper
	cfg   Config

	mu       sync.RWMutex
	sessions map[string]*session
}

// New returns a Gateway. swapper may be nil.
func New(relayer Relayer, swapper Swapper, cfg Config) *Gateway {
	return &Gateway{
		relay:    relayer,
		swap:     swapper,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// ServeHTTP upgrades the connection and serves its request loop. Each
// connection is read by a single goroutine, so a session's envelopes are
// processed strictly in arrival order.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		logger.Infof("failed to upgrade websocket connection: %v", err)

		return
	}

	sess := &session{id: uuid.New().String(), conn: conn}

	g.addSession(sess)
	metrics.ConnectedSessions.Inc()

	logger.Debugf("session %s connected", sess.id)

	defer func() {
		g.removeSession(sess.id)
		metrics.ConnectedSessions.Dec()
		g.relay.Disconnect(sess.id)

		if err := conn.Close(websocket.StatusNormalClosure, "closing the connection"); err != nil &&
			websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			logger.Debugf("session %s close: %v", sess.id, err)
		}

		logger.Debugf("session %s disconnected", sess.id)
	}()

	limiter := g.newLimiter()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure &&
				websocket.CloseStatus(err) != websocket.StatusGoingAway {
				logger.Debugf("session %s read: %v", sess.id, err)
			}

			return
		}

		g.handleFrame(r.Context(), sess, limiter, data)
	}
}

func (g *Gateway) newLimiter() *rate.Limiter {
	if g.cfg.RateLimit <= 0 || g.cfg.RateBurst <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}

	return rate.NewLimiter(rate.Limit(g.cfg.RateLimit), g.cfg.RateBurst)
}

func (g *Gateway) handleFrame(ctx context.Context, sess *session, limiter *rate.Limiter, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		g.writeAck(ctx, sess, ack{Status: http.StatusBadRequest, Error: "malformed request frame"})

		return
	}

	if !limiter.Allow() {
		g.writeAck(ctx, sess, ack{ID: req.ID, Status: http.StatusTooManyRequests, Error: "rate limit exceeded"})

		return
	}

	details, err := g.dispatch(ctx, sess.id, req)
	if err != nil {
		status := comerr.StatusOf(err)
		metrics.RequestErrors.WithLabelValues(strconv.Itoa(status)).Inc()

		g.writeAck(ctx, sess, ack{ID: req.ID, Status: status, Error: err.Error(), Details: comerr.DetailsOf(err)})

		return
	}

	g.writeAck(ctx, sess, ack{ID: req.ID, Status: http.StatusOK, Details: details})
}

// dispatch routes one request. A panic in a handler is converted into an
// internal error ack: one session's input must never take down another's
// connection, let alone the process.
func (g *Gateway) dispatch(ctx context.Context, sessionID string, req request) (details interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("panic handling %s for session %s: %v", req.Channel, sessionID, r)

			details, err = nil, comerr.New(comerr.Internal, "")
		}
	}()

	if req.Payload.Message == "" {
		return nil, comerr.New(comerr.MalformedEnvelope, "body not found")
	}

	switch req.Channel {
	case ChannelLogin:
		return g.relay.Login(ctx, sessionID, req.Payload.Message)
	case ChannelRelay:
		if err := g.relay.Relay(ctx, sessionID, req.Payload.Message); err != nil {
			return nil, err
		}

		return true, nil
	case ChannelSwap:
		if g.swap == nil {
			return nil, comerr.New(comerr.Internal, "")
		}

		return g.swap.SwapToBase(ctx, sessionID, req.Payload.Message)
	case ChannelFaucet:
		if g.swap == nil {
			return nil, comerr.New(comerr.Internal, "")
		}

		return g.swap.RequestFaucet(ctx, sessionID, req.Payload.Message)
	default:
		return nil, comerr.Newf(comerr.MalformedEnvelope, "unknown channel %q", req.Channel)
	}
}

func (g *Gateway) writeAck(ctx context.Context, sess *session, a ack) {
	if err := sess.write(ctx, a); err != nil {
		logger.Debugf("session %s ack write: %v", sess.id, err)
	}
}

// Send implements relay.Sender: it pushes one event to one session.
func (g *Gateway) Send(sessionID, event string, payload interface{}) error {
	g.mu.RLock()
	sess, ok := g.sessions[sessionID]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no connection for session %s", sessionID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	return sess.write(ctx, push{Channel: event, Payload: payload})
}

// SessionCount returns the number of live connections.
func (g *Gateway) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.sessions)
}

func (g *Gateway) addSession(sess *session) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.sessions[sess.id] = sess
}

func (g *Gateway) removeSession(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.sessions, id)
}
