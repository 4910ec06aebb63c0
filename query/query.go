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

// Package query serves cursor-paginated list queries against the local
// document store. Pagination is id-first: the ordering always ends with the
// document id as tiebreaker, and pages resume from an opaque cursor rather
// than a numeric offset, so concurrent inserts and deletes cannot shift
// rows between pages of the same walk.
package query

import (
	"context"
	"fmt"
	"sort"
	gotime "time"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/store"
)

// DefaultLimit is used when the caller does not set a page size.
const DefaultLimit = 50

// Engine answers filtered, sorted, cursor-paginated queries.
type Engine struct {
	store  *store.Store
	logger logging.Logger
}

// New creates an engine over the given store.
func New(s *store.Store) *Engine {
	return &Engine{
		store:  s,
		logger: logging.New("query"),
	}
}

// ApplyFilters returns one page of documents matching the filters under the
// requested ordering. The total counts all documents matching the same
// filters at query time, not the whole collection.
func (e *Engine) ApplyFilters(
	ctx context.Context,
	collection types.EntityType,
	filters []types.Filter,
	opts types.QueryOptions,
) (*types.Page, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	orderBy := opts.OrderBy
	if orderBy.Field == "" {
		orderBy = types.OrderBy{Field: "id", Direction: types.Asc}
	}
	if orderBy.Direction == "" {
		orderBy.Direction = types.Asc
	}

	docs, err := e.store.Find(ctx, collection, filters)
	if err != nil {
		return nil, err
	}

	sortDocs(docs, orderBy)
	total := len(docs)

	fp := fingerprint(collection, filters, orderBy)
	start := 0
	if opts.Cursor != "" {
		token, err := decodeCursor(opts.Cursor)
		switch {
		case err != nil:
			e.logger.Debugf("ignore malformed cursor for %s: %s", collection, err)
		case token.Fingerprint != fp:
			// The cursor was produced under different filters or
			// ordering; restart from the first page.
			e.logger.Debugf("ignore mismatched cursor for %s", collection)
		default:
			start = resumeIndex(docs, orderBy, token)
		}
	}

	end := start + limit
	if end > len(docs) {
		end = len(docs)
	}
	records := docs[start:end]

	page := &types.Page{
		Records: records,
		Total:   total,
	}

	if end < len(docs) {
		last := records[len(records)-1]
		next, err := encodeCursor(cursorToken{
			Fingerprint: fp,
			SortValue:   sortValue(last, orderBy.Field),
			ID:          last.ID,
		})
		if err != nil {
			return nil, fmt.Errorf("apply filters on %s: %w", collection, err)
		}
		page.NextCursor = next
		page.HasMore = true
	}

	return page, nil
}

// resumeIndex returns the index of the first document strictly after the
// cursor position under the given ordering.
func resumeIndex(docs []*types.Document, orderBy types.OrderBy, token cursorToken) int {
	return sort.Search(len(docs), func(i int) bool {
		c := compareValues(sortValue(docs[i], orderBy.Field), token.SortValue)
		if orderBy.Direction == types.Desc {
			c = -c
		}
		if c != 0 {
			return c > 0
		}
		return docs[i].ID > token.ID
	})
}

func sortDocs(docs []*types.Document, orderBy types.OrderBy) {
	sort.SliceStable(docs, func(i, j int) bool {
		c := compareValues(sortValue(docs[i], orderBy.Field), sortValue(docs[j], orderBy.Field))
		if orderBy.Direction == types.Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		// Tiebreaker keeps rows with equal sort keys in a total order.
		return docs[i].ID < docs[j].ID
	})
}

func sortValue(doc *types.Document, field string) interface{} {
	if field == "id" {
		return doc.ID
	}
	if field == "modified_on" {
		return doc.ModifiedOn
	}
	return doc.Fields[field]
}

// compareValues orders payload values of mixed types: nil first, then
// booleans, numbers, strings and times, each compared within its own kind.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if at, aok := a.(gotime.Time); aok {
		if bt, bok := b.(gotime.Time); bok {
			switch {
			case at.Before(bt):
				return -1
			case at.After(bt):
				return 1
			default:
				return 0
			}
		}
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			switch {
			case ab == bb:
				return 0
			case bb:
				return -1
			default:
				return 1
			}
		}
	}

	as := fmt.Sprintf("%v", a)
	bs := fmt.Sprintf("%v", b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
