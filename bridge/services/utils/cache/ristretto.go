/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package cache

import (
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// ZeroCost with this ristretto uses the Cost function defined in its configuration
	ZeroCost = 0

	DefaultNumCounters = 1e4
	DefaultMaxCost     = 1e3
	DefaultBufferItems = 64
)

// Cache is a bounded key-value cache whose loads are deduplicated per key
type Cache[T any] struct {
	cache *ristretto.Cache[string, T]
	ttl   time.Duration
	sfg   singleflight.Group
}

// New creates a cache holding at most maxItems entries. A positive ttl expires entries.
func New[T any](maxItems int64, ttl time.Duration) (*Cache[T], error) {
	c, err := ristretto.NewCache[string, T](&ristretto.Config[string, T]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: DefaultBufferItems,
		Cost: func(value T) int64 {
			return 1
		},
	})
	if err != nil {
		return nil, err
	}
	return &Cache[T]{cache: c, ttl: ttl}, nil
}

func NewDefault[T any]() (*Cache[T], error) {
	return New[T](DefaultMaxCost, 0)
}

func (c *Cache[T]) Get(key string) (T, bool) {
	return c.cache.Get(key)
}

func (c *Cache[T]) Add(key string, value T) {
	if c.ttl > 0 {
		c.cache.SetWithTTL(key, value, ZeroCost, c.ttl)
	} else {
		c.cache.Set(key, value, ZeroCost)
	}
	c.cache.Wait()
}

func (c *Cache[T]) Delete(key string) {
	c.cache.Del(key)
	c.cache.Wait()
}

func (c *Cache[T]) Clear() {
	c.cache.Clear()
	c.cache.Wait()
}

// GetOrLoad returns the cached value or loads it once for all concurrent callers.
// The boolean reports whether the value was found in the cache.
func (c *Cache[T]) GetOrLoad(key string, loader func() (T, error)) (T, bool, error) {
	var zero T

	if value, found := c.Get(key); found {
		return value, true, nil
	}

	res, err, _ := c.sfg.Do(key, func() (interface{}, error) {
		newValue, loadErr := loader()
		if loadErr != nil {
			return nil, loadErr
		}
		c.Add(key, newValue)
		return newValue, nil
	})
	if err != nil {
		return zero, false, err
	}
	return res.(T), false, nil
}

// Close stops the cache's background goroutines
func (c *Cache[T]) Close() {
	c.cache.Close()
}
