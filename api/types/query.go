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

package types

// SortDirection is the direction of an ordering.
type SortDirection string

const (
	// Asc sorts ascending.
	Asc SortDirection = "asc"

	// Desc sorts descending.
	Desc SortDirection = "desc"
)

// OrderBy names the sort field requested by the caller. The query engine
// always appends the document id as tiebreaker so rows with equal sort keys
// still form a total order.
type OrderBy struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// Filter is a single predicate over a payload field. Exactly one of Equals
// and Regex is set.
type Filter struct {
	// Field is the payload field the predicate applies to. The special
	// field "id" matches the document id.
	Field string `json:"field"`

	// Equals requires the field value to equal this value.
	Equals interface{} `json:"equals,omitempty"`

	// Regex requires the string form of the field value to match this
	// pattern.
	Regex string `json:"regex,omitempty"`
}

// QueryOptions configure one page of a cursor query.
type QueryOptions struct {
	// Limit is the maximum number of records returned.
	Limit int

	// Cursor resumes after the row encoded in the token. Empty means the
	// first page. A cursor produced under different filters or ordering is
	// ignored and the query restarts from the first page.
	Cursor string

	// OrderBy is the requested ordering. A zero value sorts by id.
	OrderBy OrderBy
}

// Page is the result of one cursor query.
type Page struct {
	// Records contains at most Limit matching documents.
	Records []*Document `json:"records"`

	// Total is the number of documents matching the filters at query time.
	// It may be stale under concurrent writes but is never negative.
	Total int `json:"total"`

	// NextCursor resumes strictly after the last record under the same
	// filters and ordering. Empty when the page is the last one.
	NextCursor string `json:"nextCursor"`

	// HasMore is true iff NextCursor is set. It is advisory between
	// fetches over a live collection.
	HasMore bool `json:"hasMore"`
}
