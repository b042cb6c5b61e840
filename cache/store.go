// Copyright 2025 The BrownBuild Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrNotFound  = errors.New("cache entry not found")
	ErrCorrupted = errors.New("corrupted cache entry")
)

// Store is a key-addressed storage of opaque stage results.
// Keys are slash-separated paths (e.g. "default/vectors").
// No validation of stored content against its inputs is performed.
type Store interface {

	// Get returns ErrNotFound for a missing key
	Get(key string) ([]byte, error)

	Put(key string, data []byte) error

	// Invalidate removes a key. Removing a missing key is not an error.
	Invalidate(key string) error

	Close() error
}

// RunAndCache returns a decoded result stored under key or, in case
// there is no such entry (or recompute is true), it runs fn and stores
// its result. An existing entry which cannot be read or decoded produces
// an error.
func RunAndCache[T any](store Store, key string, recompute bool, fn func() (T, error)) (T, error) {
	var ans T
	if !recompute {
		data, err := store.Get(key)
		if err == nil {
			if err := msgpack.Unmarshal(data, &ans); err != nil {
				return ans, fmt.Errorf("failed to decode %s: %w (%s)", key, ErrCorrupted, err)
			}
			log.Info().Str("key", key).Msg("using cached result")
			return ans, nil

		} else if !errors.Is(err, ErrNotFound) {
			return ans, fmt.Errorf("failed to read cached %s: %w", key, err)
		}
	}
	t0 := time.Now()
	ans, err := fn()
	if err != nil {
		return ans, err
	}
	data, err := msgpack.Marshal(ans)
	if err != nil {
		return ans, fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := store.Put(key, data); err != nil {
		return ans, fmt.Errorf("failed to store %s: %w", key, err)
	}
	log.Info().
		Str("key", key).
		Float64("elapsedSec", time.Since(t0).Seconds()).
		Msg("stage result computed and cached")
	return ans, nil
}
