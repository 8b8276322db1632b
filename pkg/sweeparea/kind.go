/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sweeparea

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Kind selects the indexing strategy of a sweep area.
type Kind int

const (
	// List keeps entries in one start ordered slice and scans it.
	List Kind = iota
	// Hash buckets entries by a hash of their value.
	Hash
)

func (k Kind) String() string {
	switch k {
	case List:
		return "list"
	case Hash:
		return "hash"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses "list" or "hash", ignoring case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "list", "":
		return List, nil
	case "hash":
		return Hash, nil
	}
	return 0, fmt.Errorf("unknown sweep area kind %q", s)
}

// HashString hashes s with xxhash.
func HashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

// HashBytes hashes b with xxhash.
func HashBytes(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// HashInt64 hashes v with xxhash.
func HashInt64(v int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return xxhash.Sum64(buf[:])
}
