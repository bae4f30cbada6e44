/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mock

import "sync"

// Emitted is one push event captured by Sender.
type Emitted struct {
	SessionID string
	Event     string
	Payload   interface{}
}

// Sender captures push events instead of writing them to a transport.
type Sender struct {
	mu     sync.Mutex
	events []Emitted

	// Err, when set, fails every delivery.
	Err error
}

// Send implements relay.Sender.
func (s *Sender) Send(sessionID, event string, payload interface{}) error {
	if s.Err != nil {
		return s.Err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, Emitted{SessionID: sessionID, Event: event, Payload: payload})

	return nil
}

// Events returns the captured events.
func (s *Sender) Events() []Emitted {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Emitted, len(s.events))
	copy(out, s.events)

	return out
}
