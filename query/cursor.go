/*
 * Copyright 2026 The PawSync Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package query

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/pawsync-team/pawsync/api/types"
)

// cursorToken is the decoded form of an opaque cursor. It encodes the last
// returned row's sort key and id together with a fingerprint of the
// (filters, orderBy) pair that produced it. A token whose fingerprint does
// not match the current query is ignored and the query restarts from the
// first page.
type cursorToken struct {
	Fingerprint uint64      `msgpack:"fp"`
	SortValue   interface{} `msgpack:"sv"`
	ID          string      `msgpack:"id"`
}

func encodeCursor(token cursorToken) (string, error) {
	raw, err := msgpack.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (cursorToken, error) {
	var token cursorToken

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return token, fmt.Errorf("decode cursor: %w", err)
	}
	if err := msgpack.Unmarshal(raw, &token); err != nil {
		return token, fmt.Errorf("decode cursor: %w", err)
	}
	return token, nil
}

// fingerprint hashes the canonical form of the filters and ordering. The
// filter list is sorted by field so two semantically equal filter sets hash
// the same.
func fingerprint(collection types.EntityType, filters []types.Filter, orderBy types.OrderBy) uint64 {
	canonical := make([]types.Filter, len(filters))
	copy(canonical, filters)
	sort.Slice(canonical, func(i, j int) bool {
		return canonical[i].Field < canonical[j].Field
	})

	h := fnv.New64a()
	write := func(s string) {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}

	write(string(collection))
	for _, f := range canonical {
		write(f.Field)
		write(fmt.Sprintf("%v", f.Equals))
		write(f.Regex)
	}
	write(orderBy.Field)
	write(string(orderBy.Direction))

	return h.Sum64()
}
