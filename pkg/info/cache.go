/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package info memoizes expensively computed informational values with a
// TTL, for the read-only HTTP endpoints.
package info

import (
	"time"

	"github.com/bluele/gcache"
)

// FetchFunc computes the value for a cache key on a miss.
type FetchFunc func(key string) (interface{}, error)

// Cache is a TTL-memoized value store. Concurrent misses on the same key
// trigger a single fetch; the rest wait for its result. Fetch errors are
// returned to every waiter and nothing is cached for that key.
type Cache struct {
	cache gcache.Cache
}

// New returns a Cache holding at most size keys for ttl each.
func New(size int, ttl time.Duration, fetch FetchFunc) *Cache {
	return &Cache{
		cache: gcache.New(size).
			Simple().
			LoaderExpireFunc(func(key interface{}) (interface{}, *time.Duration, error) {
				v, err := fetch(key.(string))
				if err != nil {
					return nil, nil, err
				}

				return v, &ttl, nil
			}).
			Build(),
	}
}

// Get returns the cached value for key, fetching it on a miss or after
// expiry.
func (c *Cache) Get(key string) (interface{}, error) {
	return c.cache.Get(key)
}
