/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package restapi_test

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonomy-foundation/communication-go/pkg/info"
	"github.com/tonomy-foundation/communication-go/pkg/restapi"
	"github.com/tonomy-foundation/communication-go/pkg/verification"
)

func setup(t *testing.T, fetch info.FetchFunc) *httptest.Server {
	t.Helper()

	gateway := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	var cache *info.Cache
	if fetch != nil {
		cache = info.New(4, time.Minute, fetch)
	}

	srv := httptest.NewServer(restapi.Router(restapi.Provider{Gateway: gateway, Info: cache}))
	t.Cleanup(srv.Close)

	return srv
}

type notifierStub struct{ online bool }

func (n *notifierStub) NotifyByIdentity(string, string, interface{}) bool { return n.online }

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec,noctx // test server url
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, body
}

func TestRouter(t *testing.T) {
	t.Run("health", func(t *testing.T) {
		srv := setup(t, nil)

		resp, body := get(t, srv.URL+"/health")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"status":"ok"}`, string(body))
	})

	t.Run("metrics", func(t *testing.T) {
		srv := setup(t, nil)

		resp, body := get(t, srv.URL+"/metrics")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, string(body), "communication_")
	})

	t.Run("info served from the cache", func(t *testing.T) {
		var calls int32

		srv := setup(t, func(string) (interface{}, error) {
			atomic.AddInt32(&calls, 1)

			return map[string]interface{}{"environment": "development", "users": 3}, nil
		})

		for i := 0; i < 3; i++ {
			resp, body := get(t, srv.URL+"/v1/info")
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var v map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &v))
			require.Equal(t, "development", v["environment"])
		}

		require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})

	t.Run("info fetch failure is not leaked", func(t *testing.T) {
		srv := setup(t, func(string) (interface{}, error) {
			return nil, errors.New("stats backend down")
		})

		resp, body := get(t, srv.URL+"/v1/info")
		require.Equal(t, http.StatusBadGateway, resp.StatusCode)
		require.NotContains(t, string(body), "stats backend down")
	})

	t.Run("info absent without a cache", func(t *testing.T) {
		srv := setup(t, nil)

		resp, _ := get(t, srv.URL+"/v1/info")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("verification webhook forwards to the wallet", func(t *testing.T) {
		svc := verification.New(&notifierStub{online: true})

		srv := httptest.NewServer(restapi.Router(restapi.Provider{
			Gateway:      http.NotFoundHandler(),
			Verification: svc,
		}))
		t.Cleanup(srv.Close)

		body := `{"did":"did:antelope:tonomy:alice#local","decision":{"id":"v-1","status":"approved"}}`

		resp, err := http.Post(srv.URL+"/v1/verification", "application/json", strings.NewReader(body)) //nolint:noctx
		require.NoError(t, err)

		payload, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.JSONEq(t, `{"delivered":true}`, string(payload))

		resp, err = http.Post(srv.URL+"/v1/verification", "application/json", strings.NewReader("{")) //nolint:noctx
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("cors allows any origin", func(t *testing.T) {
		srv := setup(t, nil)

		req, err := http.NewRequest(http.MethodOptions, srv.URL+"/health", strings.NewReader("")) //nolint:noctx
		require.NoError(t, err)

		req.Header.Set("Origin", "https://wallet.example")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})
}
