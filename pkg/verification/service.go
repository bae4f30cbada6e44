/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package verification pushes identity-verification decisions to the
// subject's wallet session. The webhook transport and provider signature
// checks live outside this package; it only bridges a decision into the
// relay push channel.
package verification

import (
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/tonomy-foundation/communication-go/pkg/msg"
)

var logger = log.New("communication/verification")

// EventDecision is the push channel carrying verification outcomes.
const EventDecision = "v1/verification/receive"

// Notifier pushes an event to a DID's current session, if any.
type Notifier interface {
	NotifyByIdentity(did, event string, payload interface{}) bool
}

// Decision is the provider's verdict on one verification attempt.
type Decision struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Service delivers verification decisions over the relay.
type Service struct {
	notifier Notifier
}

// New returns a verification Service.
func New(notifier Notifier) *Service {
	return &Service{notifier: notifier}
}

// PublishDecision pushes a decision to did's active session. It reports
// whether the wallet was reachable; an offline wallet is the caller's
// problem to retry, not an error here.
func (s *Service) PublishDecision(did string, d Decision) bool {
	delivered := s.notifier.NotifyByIdentity(did, EventDecision, map[string]interface{}{
		"type":    string(msg.TypeVerification),
		"payload": d,
	})

	if !delivered {
		logger.Infof("verification decision %s for %s not delivered: no active session", d.ID, did)
	}

	return delivered
}
