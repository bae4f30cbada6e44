/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package relay implements the session relay core: login, signed message
// relay between logged-in DIDs, disconnect cleanup and out-of-band
// notification delivery.
package relay

import (
	"context"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/tonomy-foundation/communication-go/pkg/comerr"
	"github.com/tonomy-foundation/communication-go/pkg/internal/metrics"
	"github.com/tonomy-foundation/communication-go/pkg/msg"
	"github.com/tonomy-foundation/communication-go/pkg/registry"
)

var logger = log.New("communication/relay")

// EventMessage is the push channel carrying relayed envelopes.
const EventMessage = "v1/message"

// Sender delivers a push event to one transport session.
type Sender interface {
	Send(sessionID, event string, payload interface{}) error
}

// Service is the relay core. Registry mutations are short and synchronous;
// none bracket a verification or delivery call.
type Service struct {
	registry *registry.Registry
	verifier *msg.Verifier
	sender   Sender
}

// New returns a relay Service.
func New(reg *registry.Registry, verifier *msg.Verifier, sender Sender) *Service {
	return &Service{registry: reg, verifier: verifier, sender: sender}
}

// Authorized reports whether sessionID has a logged-in identity. Checked
// per operation: sessions can be released at any moment.
func (s *Service) Authorized(sessionID string) bool {
	_, ok := s.registry.Identity(sessionID)

	return ok
}

// Login verifies an authentication envelope and binds its sender DID to
// sessionID. Verifier errors propagate unwrapped. The returned bool is
// false for an idempotent duplicate login.
func (s *Service) Login(ctx context.Context, sessionID, raw string) (bool, error) {
	m, err := s.verifier.Verify(ctx, raw, msg.TypeAuthentication)
	if err != nil {
		return false, err
	}

	// A session binds one identity for its lifetime; only re-login with
	// the same DID is accepted (and is a no-op).
	if current, ok := s.registry.Identity(sessionID); ok && current != m.Sender() {
		return false, comerr.New(comerr.Unauthenticated, "session is already bound to another identity")
	}

	newBinding := s.registry.Bind(m.Sender(), sessionID)
	if newBinding {
		logger.Debugf("login %s -> session %s", m.Sender(), sessionID)
	}

	metrics.LoggedInUsers.Set(float64(s.registry.Size()))

	return newBinding, nil
}

// Relay forwards a verified envelope to its recipient's current session.
// The original signed envelope string is forwarded verbatim so the
// recipient can re-verify it end to end.
func (s *Service) Relay(ctx context.Context, sessionID, raw string) error {
	if !s.Authorized(sessionID) {
		return comerr.New(comerr.Unauthenticated, "please login to be able to use service")
	}

	m, err := s.verifier.Verify(ctx, raw, msg.TypeAny)
	if err != nil {
		return err
	}

	if m.Recipient() == "" {
		return comerr.New(comerr.MalformedEnvelope, "relay message has no recipient")
	}

	recipient, ok := s.registry.Resolve(m.Recipient())
	if !ok {
		// Deliberately not queued for offline delivery.
		return comerr.Newf(comerr.RecipientNotConnected, "recipient not connected %s", m.Recipient())
	}

	logger.Debugf("relay %s -> %s (%s) session %s", m.Sender(), m.Recipient(), m.Type(), recipient)

	if err := s.sender.Send(recipient, EventMessage, m.Raw()); err != nil {
		return comerr.Wrap(comerr.Internal, err, "forward message")
	}

	metrics.RelayedMessages.Inc()

	return nil
}

// Disconnect purges sessionID from the registry. Idempotent, never errors.
func (s *Service) Disconnect(sessionID string) {
	s.registry.Release(sessionID)
	metrics.LoggedInUsers.Set(float64(s.registry.Size()))
}

// NotifyByIdentity pushes an out-of-band event to did's current session.
// It returns false when did has no active session or delivery fails;
// callers decide whether that is fatal for their flow.
func (s *Service) NotifyByIdentity(did, event string, payload interface{}) bool {
	sessionID, ok := s.registry.Resolve(did)
	if !ok {
		logger.Debugf("notify %s: no active session", did)

		return false
	}

	if err := s.sender.Send(sessionID, event, payload); err != nil {
		logger.Errorf("notify %s on session %s: %v", did, sessionID, err)

		return false
	}

	return true
}
