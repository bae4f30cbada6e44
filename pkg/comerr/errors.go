/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package comerr defines the error kinds surfaced to clients through
// websocket acknowledgements, together with their ack status codes.
package comerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a client-visible error condition.
type Kind int32

const (
	// Internal is the catch-all for unexpected failures. Its client
	// message never exposes internals.
	Internal Kind = iota

	// MalformedEnvelope indicates the raw envelope could not be decoded.
	MalformedEnvelope

	// SignatureInvalid indicates the envelope signature did not verify
	// against the signer's resolved key material.
	SignatureInvalid

	// SignerUnresolvable indicates the signer's DID document could not be
	// resolved. Kept distinct from SignatureInvalid so it maps to a
	// not-found status instead of an unauthorized one.
	SignerUnresolvable

	// UnexpectedMessageType indicates the envelope carried a different
	// message type than the operation requires.
	UnexpectedMessageType

	// Unauthenticated indicates the calling session has no logged-in
	// identity.
	Unauthenticated

	// RecipientNotConnected indicates the relay target has no bound
	// session. Terminal for the relay attempt; nothing is queued.
	RecipientNotConnected

	// UntrustedIssuer indicates a swap envelope was not issued by the
	// well-known platform application.
	UntrustedIssuer

	// InvalidAmount indicates an asset amount failed format or bounds
	// validation.
	InvalidAmount

	// ThrottleLimitExceeded indicates the rolling faucet cap was hit.
	ThrottleLimitExceeded

	// FaucetUnavailable indicates the faucet is disabled in this
	// environment.
	FaucetUnavailable

	// ChainOperationFailed wraps a downstream chain-call failure.
	ChainOperationFailed
)

// Error is a client-visible error condition with an ack status code and
// optional details for client display.
type Error struct {
	kind    Kind
	msg     string
	cause   error
	details map[string]interface{}
}

// New returns a new Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf returns a new Error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap returns a new Error of the given kind caused by err.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{kind: kind, msg: msg, cause: err}
}

// WithDetail attaches a named detail for client display and returns the
// receiver.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.details == nil {
		e.details = map[string]interface{}{}
	}

	e.details[key] = value

	return e
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Details returns the details attached for client display, if any.
func (e *Error) Details() map[string]interface{} {
	return e.details
}

// Error implements the error interface. Internal errors always render a
// generic message.
func (e *Error) Error() string {
	if e.kind == Internal {
		return "internal server error"
	}

	if e.cause != nil {
		return fmt.Sprintf("%s : %s", e.msg, e.cause)
	}

	return e.msg
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf returns the kind of err, or Internal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.kind
	}

	return Internal
}

// StatusOf maps err to the status code carried by its acknowledgement.
func StatusOf(err error) int {
	switch KindOf(err) {
	case MalformedEnvelope, UnexpectedMessageType, InvalidAmount:
		return http.StatusBadRequest
	case SignatureInvalid, Unauthenticated:
		return http.StatusUnauthorized
	case SignerUnresolvable, RecipientNotConnected:
		return http.StatusNotFound
	case UntrustedIssuer:
		return http.StatusForbidden
	case ThrottleLimitExceeded:
		return http.StatusTooManyRequests
	case FaucetUnavailable:
		return http.StatusServiceUnavailable
	case ChainOperationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func asError(err error, target **Error) bool {
	return errors.As(err, target)
}

// DetailsOf returns the client-display details of err, if any.
func DetailsOf(err error) map[string]interface{} {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.details
	}

	return nil
}
