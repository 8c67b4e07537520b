/*
 * === This file is part of ALICE O² ===
 *
 * Copyright 2024 CERN and copyright holders of ALICE O².
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 * In applying this license CERN does not waive the privileges and
 * immunities granted to it by virtue of its status as an
 * Intergovernmental Organization or submit itself to any jurisdiction.
 */

// Package session implements the key/value store shared between the
// controller worker and its callers.
package session

import (
	"errors"
	"fmt"
	"sync"
)

var ErrUnknownKey = errors.New("unknown session key")

type Key string

const (
	// NbDevs is the number of guns seen by the last scan.
	NbDevs = Key("nbDevs")
	// Config is the configuration block read from, or to be written to, the gun.
	Config = Key("config")
	// DynData is the last raw IR sample block.
	DynData = Key("dynData")
	// GunPos holds the last non-empty batch of pointer positions.
	GunPos = Key("gunPos")
	// Override is reserved for transition requests issued by callers.
	Override = Key("override")
)

var _keys = []Key{NbDevs, Config, DynData, GunPos, Override}

func Keys() []Key {
	out := make([]Key, len(_keys))
	copy(out, _keys)
	return out
}

func (k Key) Valid() bool {
	return containsKey(_keys, k)
}

func (k Key) String() string {
	return string(k)
}

// Store is safe for concurrent use. Stored values are treated as immutable
// snapshots: writers replace them with Set, nobody modifies them in place.
type Store struct {
	mu     sync.Mutex
	values map[Key]interface{}
}

func New() *Store {
	return &Store{
		values: make(map[Key]interface{}, len(_keys)),
	}
}

// Get returns the value stored for key, or nil. With reset the entry is
// cleared in the same critical section.
func (s *Store) Get(key Key, reset bool) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := s.values[key]
	if reset {
		delete(s.values, key)
	}
	return value
}

// Set stores value under key. A nil value clears the entry.
func (s *Store) Set(key Key, value interface{}) error {
	if !key.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		delete(s.values, key)
		return nil
	}
	s.values[key] = value
	return nil
}

// Clear drops every entry except the ones listed in keep.
func (s *Store) Clear(keep ...Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(keep) == 0 {
		clear(s.values)
		return
	}
	for k := range s.values {
		if !containsKey(keep, k) {
			delete(s.values, k)
		}
	}
}

func containsKey(keys []Key, key Key) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// Snapshot returns a shallow copy of all entries.
func (s *Store) Snapshot() map[Key]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[Key]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}
