/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package chain

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"

	"github.com/tonomy-foundation/communication-go/pkg/comerr"
)

const defaultMaxRetries = 4

// WithRetry runs fn with exponential backoff and wraps the final failure
// as a chain operation error. Use only for idempotent calls; state-moving
// submissions must not be retried blindly.
func WithRetry(ctx context.Context, op string, fn func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(newBackOff(), defaultMaxRetries), ctx)

	if err := backoff.Retry(fn, bo); err != nil {
		return comerr.Wrap(comerr.ChainOperationFailed, errors.Wrap(err, op), "chain call failed")
	}

	return nil
}

func newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 0

	return bo
}
