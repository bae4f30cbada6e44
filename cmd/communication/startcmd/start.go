/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package startcmd wires the service components and runs the server.
package startcmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/tonomy-foundation/communication-go/pkg/chain"
	"github.com/tonomy-foundation/communication-go/pkg/chain/evm"
	"github.com/tonomy-foundation/communication-go/pkg/chain/tonomy"
	"github.com/tonomy-foundation/communication-go/pkg/config"
	"github.com/tonomy-foundation/communication-go/pkg/info"
	"github.com/tonomy-foundation/communication-go/pkg/msg"
	"github.com/tonomy-foundation/communication-go/pkg/registry"
	"github.com/tonomy-foundation/communication-go/pkg/relay"
	"github.com/tonomy-foundation/communication-go/pkg/restapi"
	"github.com/tonomy-foundation/communication-go/pkg/swap"
	"github.com/tonomy-foundation/communication-go/pkg/transport/ws"
	"github.com/tonomy-foundation/communication-go/pkg/verification"
	"github.com/tonomy-foundation/communication-go/pkg/watcher"
)

var logger = log.New("communication/startcmd")

const (
	configFlagName      = "config"
	configFlagShorthand = "c"
	configEnvKey        = config.EnvPrefix + "CONFIG"
	configFlagUsage     = "Path to the yaml configuration file." +
		" Alternatively, this can be set with the following environment variable: " + configEnvKey

	shutdownTimeout = 10 * time.Second
)

// logModules lists the loggers whose level follows the configuration.
var logModules = []string{
	"communication/main",
	"communication/startcmd",
	"communication/ws",
	"communication/relay",
	"communication/swap",
	"communication/watcher",
	"communication/verification",
	"communication/restapi",
	"communication/evm",
	"communication/tonomy",
}

// Cmd returns the start command.
func Cmd() *cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the communication service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString(configFlagName)
			if err != nil {
				return err
			}

			if path == "" {
				path = os.Getenv(configEnvKey)
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}

			return runService(cfg)
		},
	}

	startCmd.Flags().StringP(configFlagName, configFlagShorthand, "", configFlagUsage)

	return startCmd
}

func setLogLevel(level string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	for _, module := range logModules {
		log.SetLevel(module, parsed)
	}

	return nil
}

// senderProxy breaks the construction cycle between the relay core and
// the websocket gateway.
type senderProxy struct {
	sender relay.Sender
}

func (p *senderProxy) Send(sessionID, event string, payload interface{}) error {
	if p.sender == nil {
		return errors.New("transport not ready")
	}

	return p.sender.Send(sessionID, event, payload)
}

func runService(cfg *config.Config) error {
	if err := setLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	if cfg.Chain.TonomyEndpoint == "" {
		return errors.New("tonomyEndpoint is required to resolve envelope signer keys")
	}

	signer := newHTTPSigner(cfg.Chain.SignerEndpoint)

	tonomyClient := tonomy.New(tonomy.Config{
		Endpoint:      cfg.Chain.TonomyEndpoint,
		TokenContract: cfg.Chain.TonomyContract,
		BridgeAccount: cfg.Chain.BridgeAccount,
	}, signer.tonomy)

	reg := registry.New()
	verifier := msg.NewVerifier(tonomy.NewKeyResolver(tonomyClient))
	proxy := &senderProxy{}
	relaySvc := relay.New(reg, verifier, proxy)

	var (
		swapper ws.Swapper
		watch   *watcher.Watcher
	)

	if cfg.BridgeEnabled() {
		evmClient := evm.New(evm.Config{
			Endpoint:      cfg.Chain.EVMEndpoint,
			TokenContract: cfg.Chain.TokenContract,
		}, signer.evm)

		swapper = swap.New(relaySvc, verifier, tonomyClient, evmClient,
			evm.NewMsig(evmClient, cfg.Chain.MsigWallet), swap.Config{
				Production:      cfg.Production(),
				CurrencySymbol:  cfg.Chain.CurrencySymbol,
				TreasuryAccount: cfg.Chain.TreasuryAccount,
				PerRequestMax:   chain.Tokens(cfg.Faucet.PerRequestMax),
				DailyCap:        chain.Tokens(cfg.Faucet.DailyCap),
				AppAccount:      cfg.Chain.AppAccount,
				Msig:            cfg.Swap.Msig,
			})

		watch = watcher.New(evmClient, tonomyClient, relaySvc, watcher.Config{
			BridgeAddress:  cfg.Chain.BridgeAddress,
			CurrencySymbol: cfg.Chain.CurrencySymbol,
			Retention:      cfg.Watcher.Retention.Std(),
			SweepInterval:  cfg.Watcher.SweepInterval.Std(),
		})
	} else {
		logger.Infof("chain endpoints not configured, bridge watcher and swap executor disabled")
	}

	gateway := ws.New(relaySvc, swapper, ws.Config{
		RateLimit: cfg.WebSocket.RateLimit,
		RateBurst: cfg.WebSocket.RateBurst,
	})
	proxy.sender = gateway

	infoCache := info.New(4, cfg.Info.CacheTTL.Std(), func(string) (interface{}, error) {
		return map[string]interface{}{
			"environment":       cfg.Environment,
			"connectedSessions": gateway.SessionCount(),
			"loggedInUsers":     reg.Size(),
		}, nil
	})

	handler := restapi.Router(restapi.Provider{
		Gateway:      gateway,
		Info:         infoCache,
		Verification: verification.New(relaySvc),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watch != nil {
		if err := watch.Start(ctx); err != nil {
			return errors.Wrap(err, "start bridge watcher")
		}

		defer watch.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Infof("listening on %s (environment %s)", cfg.ListenAddr, cfg.Environment)

	select {
	case err := <-errCh:
		return errors.Wrap(err, "server stopped")
	case <-ctx.Done():
		logger.Infof("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}
