/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package restapi assembles the HTTP surface: the websocket endpoint, a
// liveness probe, prometheus metrics and the cached info endpoint.
package restapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/tonomy-foundation/communication-go/pkg/info"
	"github.com/tonomy-foundation/communication-go/pkg/verification"
)

var logger = log.New("communication/restapi")

const infoKey = "service"

// Provider carries the handlers the router mounts.
type Provider struct {
	// Gateway serves the websocket upgrade on /v1.
	Gateway http.Handler
	// Info backs GET /v1/info. Optional.
	Info *info.Cache
	// Verification receives provider webhook decisions. Optional.
	Verification *verification.Service
}

// Router builds the service http.Handler.
func Router(p Provider) http.Handler {
	r := mux.NewRouter()

	r.Handle("/v1", p.Gateway).Methods(http.MethodGet)
	r.HandleFunc("/health", handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	if p.Info != nil {
		r.HandleFunc("/v1/info", handleInfo(p.Info)).Methods(http.MethodGet)
	}

	if p.Verification != nil {
		r.HandleFunc("/v1/verification", handleVerification(p.Verification)).Methods(http.MethodPost)
	}

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}).Handler(r)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleInfo(cache *info.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		v, err := cache.Get(infoKey)
		if err != nil {
			logger.Errorf("info fetch: %v", err)
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "info temporarily unavailable"})

			return
		}

		writeJSON(w, http.StatusOK, v)
	}
}

// handleVerification accepts the provider's decision webhook. Provider
// signature checks happen upstream; here the decision is only forwarded
// to the subject's wallet session.
func handleVerification(svc *verification.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DID      string                `json:"did"`
			Decision verification.Decision `json:"decision"`
		}

		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed webhook body"})

			return
		}

		delivered := svc.PublishDecision(body.DID, body.Decision)

		writeJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("write response: %v", err)
	}
}
