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
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

const (
	StageDataPrefix  byte = 0x00 // entry headers (inline data or chunk count)
	StageChunkPrefix byte = 0x01 // chunks of large entries

	entryInline  byte = 0x00
	entryChunked byte = 0x01

	// DfltChunkSize must stay below both the value log file size
	// and the maximum transaction size of an in-memory database
	// (15% of the 64MB memtable).
	DfltChunkSize = 4 << 20

	valueLogFileSize = 256 << 20
)

func encodeKey(key string) []byte {
	keyBytes := make([]byte, 1+len(key))
	keyBytes[0] = StageDataPrefix
	copy(keyBytes[1:], []byte(key))
	return keyBytes
}

func encodeChunkKey(key string, idx uint32) []byte {
	keyBytes := make([]byte, 1+len(key)+1+4)
	keyBytes[0] = StageChunkPrefix
	copy(keyBytes[1:], []byte(key))
	keyBytes[1+len(key)] = 0x00
	binary.BigEndian.PutUint32(keyBytes[2+len(key):], idx)
	return keyBytes
}

// chunkHeader is stored in place of data of an entry split into chunks
func chunkHeader(numChunks uint32, size uint64) []byte {
	ans := make([]byte, 13)
	ans[0] = entryChunked
	binary.BigEndian.PutUint32(ans[1:5], numChunks)
	binary.BigEndian.PutUint64(ans[5:], size)
	return ans
}

func parseChunkHeader(data []byte) (uint32, uint64, error) {
	if len(data) != 13 || data[0] != entryChunked {
		return 0, 0, ErrCorrupted
	}
	return binary.BigEndian.Uint32(data[1:5]), binary.BigEndian.Uint64(data[5:]), nil
}

// BadgerStore keeps all the entries in a single Badger database.
// Entries larger than the chunk size are split into multiple values,
// each written in its own transaction. The header entry is written
// last so an interrupted Put never produces a readable partial entry.
type BadgerStore struct {
	bdb       *badger.DB
	chunkSize int
}

func (db *BadgerStore) Get(key string) ([]byte, error) {
	var ans []byte
	err := db.bdb.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(key))
		if err != nil {
			return err
		}
		head, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if len(head) == 0 {
			return ErrCorrupted
		}
		if head[0] == entryInline {
			ans = head[1:]
			return nil
		}
		numChunks, size, err := parseChunkHeader(head)
		if err != nil {
			return err
		}
		ans = make([]byte, 0, size)
		for i := uint32(0); i < numChunks; i++ {
			chunk, err := txn.Get(encodeChunkKey(key, i))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("missing chunk %d: %w", i, ErrCorrupted)

			} else if err != nil {
				return err
			}
			err = chunk.Value(func(val []byte) error {
				ans = append(ans, val...)
				return nil
			})
			if err != nil {
				return err
			}
		}
		if uint64(len(ans)) != size {
			return fmt.Errorf("entry size mismatch: %w", ErrCorrupted)
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound

	} else if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return ans, nil
}

func (db *BadgerStore) Put(key string, data []byte) error {
	if err := db.Invalidate(key); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	if len(data) < db.chunkSize {
		err := db.bdb.Update(func(txn *badger.Txn) error {
			return txn.Set(encodeKey(key), append([]byte{entryInline}, data...))
		})
		if err != nil {
			return fmt.Errorf("failed to store cache entry: %w", err)
		}
		return nil
	}
	var numChunks uint32
	for from := 0; from < len(data); from += db.chunkSize {
		chunk := data[from:min(from+db.chunkSize, len(data))]
		err := db.bdb.Update(func(txn *badger.Txn) error {
			return txn.Set(encodeChunkKey(key, numChunks), chunk)
		})
		if err != nil {
			return fmt.Errorf("failed to store cache entry chunk %d: %w", numChunks, err)
		}
		numChunks++
	}
	err := db.bdb.Update(func(txn *badger.Txn) error {
		return txn.Set(encodeKey(key), chunkHeader(numChunks, uint64(len(data))))
	})
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry header first and its chunks
// (if any) afterwards.
func (db *BadgerStore) Invalidate(key string) error {
	var numChunks uint32
	err := db.bdb.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(encodeKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil

		} else if err != nil {
			return err
		}
		err = item.Value(func(val []byte) error {
			if len(val) > 0 && val[0] == entryChunked {
				numChunks, _, _ = parseChunkHeader(val)
			}
			return nil
		})
		if err != nil {
			return err
		}
		return txn.Delete(encodeKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	for i := uint32(0); i < numChunks; i++ {
		err := db.bdb.Update(func(txn *badger.Txn) error {
			return txn.Delete(encodeChunkKey(key, i))
		})
		if err != nil {
			return fmt.Errorf("failed to invalidate cache entry chunk %d: %w", i, err)
		}
	}
	return nil
}

// Close closes the internal Badger database.
// It is possible to call the method on nil instance
// or on an uninitialized store, in which case
// it is a NOP.
func (db *BadgerStore) Close() error {
	if db != nil && db.bdb != nil {
		return db.bdb.Close()
	}
	return nil
}

func openBadgerStore(opts badger.Options, chunkSize int) (*BadgerStore, error) {
	bdb, err := badger.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	return &BadgerStore{bdb: bdb, chunkSize: chunkSize}, nil
}

func OpenBadgerStore(path string) (*BadgerStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache database directory: %w", err)
	}
	return openBadgerStore(
		badger.DefaultOptions(path).WithValueLogFileSize(valueLogFileSize),
		DfltChunkSize,
	)
}

// OpenInMemoryBadgerStore opens a store which loses its data once closed
func OpenInMemoryBadgerStore() (*BadgerStore, error) {
	return openBadgerStore(badger.DefaultOptions("").WithInMemory(true), DfltChunkSize)
}
