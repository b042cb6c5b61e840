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
	"os"
	"path/filepath"
)

const fileSuffix = ".msgpack"

// FileStore stores each entry in its own file under
// a root directory.
type FileStore struct {
	root string
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (fs *FileStore) Path(key string) string {
	return filepath.Join(fs.root, filepath.FromSlash(key)) + fileSuffix
}

func (fs *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(fs.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound

	} else if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	return data, nil
}

// Put writes data to a temporary file first so an interrupted
// write cannot leave a truncated entry behind.
func (fs *FileStore) Put(key string, data []byte) error {
	path := fs.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	return nil
}

func (fs *FileStore) Invalidate(key string) error {
	err := os.Remove(fs.Path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}

func (fs *FileStore) Close() error {
	return nil
}
