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

package sync

import (
	"fmt"
	"sort"
	gotime "time"

	"github.com/pawsync-team/pawsync/api/types"
)

// Winner names which version a conflict resolution produced.
type Winner string

const (
	// WinnerLocal means the local version is kept; the incoming remote
	// version is discarded.
	WinnerLocal Winner = "local"

	// WinnerRemote means the remote version replaces the local one.
	WinnerRemote Winner = "remote"

	// WinnerMerged means both versions carried the same stamp and a
	// structural merge was produced.
	WinnerMerged Winner = "merged"
)

// Resolver merges concurrent local and remote edits of the same document.
// It is a last-write-wins heuristic with a structural merge for same-stamp
// edits, not a CRDT: concurrent edits of one scalar field keep only the
// remote author's value, but the result is deterministic given the same two
// inputs regardless of which replica resolves first.
type Resolver struct {
	// tolerance is the window within which two stamps count as the same
	// instant.
	tolerance gotime.Duration
	clock     func() gotime.Time
}

// NewResolver creates a resolver with the given same-instant tolerance.
func NewResolver(tolerance gotime.Duration, clock func() gotime.Time) *Resolver {
	if clock == nil {
		clock = gotime.Now
	}
	return &Resolver{
		tolerance: tolerance,
		clock:     clock,
	}
}

// Resolve returns the single winning document for a local/remote pair with
// the same id. The loser is discarded, not retained as history. local may
// be nil when the document does not exist locally.
func (r *Resolver) Resolve(local, remote *types.Document) (*types.Document, Winner) {
	if local == nil {
		return remote.DeepCopy(), WinnerRemote
	}

	diff := remote.ModifiedOn.Sub(local.ModifiedOn)
	switch {
	case diff > r.tolerance:
		return remote.DeepCopy(), WinnerRemote
	case diff < -r.tolerance:
		return local.DeepCopy(), WinnerLocal
	}

	merged := r.merge(local, remote)
	return merged, WinnerMerged
}

// merge produces the field-level merge of two same-instant versions:
// arrays are unioned with set semantics, objects are shallow-merged with
// remote taking precedence per key, scalars take the remote value when it
// differs. The result carries a fresh stamp and the merged marker.
func (r *Resolver) merge(local, remote *types.Document) *types.Document {
	merged := remote.DeepCopy()
	merged.Fields = mergeFields(local.Fields, remote.Fields)
	merged.Deleted = local.Deleted || remote.Deleted
	merged.Merged = true
	merged.ModifiedOn = r.clock()
	return merged
}

func mergeFields(local, remote map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(remote))

	keys := make(map[string]struct{}, len(local)+len(remote))
	for k := range local {
		keys[k] = struct{}{}
	}
	for k := range remote {
		keys[k] = struct{}{}
	}

	// Deterministic key walk keeps repeated resolutions byte-identical.
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		lv, lok := local[k]
		rv, rok := remote[k]

		switch {
		case !lok:
			merged[k] = rv
		case !rok:
			merged[k] = lv
		default:
			merged[k] = mergeValues(lv, rv)
		}
	}

	return merged
}

func mergeValues(local, remote interface{}) interface{} {
	if larr, lok := local.([]interface{}); lok {
		if rarr, rok := remote.([]interface{}); rok {
			return unionArrays(larr, rarr)
		}
	}

	if lobj, lok := local.(map[string]interface{}); lok {
		if robj, rok := remote.(map[string]interface{}); rok {
			shallow := make(map[string]interface{}, len(lobj)+len(robj))
			for k, v := range lobj {
				shallow[k] = v
			}
			for k, v := range robj {
				shallow[k] = v
			}
			return shallow
		}
	}

	// Scalars and mismatched kinds take the remote value.
	return remote
}

// unionArrays unions two arrays with set semantics: local elements in their
// order, then remote elements not already present in their order.
func unionArrays(local, remote []interface{}) []interface{} {
	seen := make(map[string]struct{}, len(local)+len(remote))
	union := make([]interface{}, 0, len(local)+len(remote))

	add := func(v interface{}) {
		key := canonicalKey(v)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		union = append(union, v)
	}

	for _, v := range local {
		add(v)
	}
	for _, v := range remote {
		add(v)
	}

	return union
}

// canonicalKey is the dedup identity of an array element. Maps are keyed by
// their sorted entries so equal objects dedup regardless of insertion order.
func canonicalKey(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		names := make([]string, 0, len(val))
		for k := range val {
			names = append(names, k)
		}
		sort.Strings(names)

		key := "{"
		for _, k := range names {
			key += fmt.Sprintf("%s=%s;", k, canonicalKey(val[k]))
		}
		return key + "}"
	case []interface{}:
		key := "["
		for _, elem := range val {
			key += canonicalKey(elem) + ","
		}
		return key + "]"
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
