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

package store

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/pkg/errors"
)

// ErrFilterInvalid is returned when a filter carries an invalid pattern or
// names no field.
var ErrFilterInvalid = errors.InvalidArgument("filter is invalid").WithCode("ErrFilterInvalid")

// matcher is a compiled filter set applied to candidate documents.
type matcher struct {
	filters  []types.Filter
	patterns []*regexp.Regexp
}

func newMatcher(filters []types.Filter) (*matcher, error) {
	m := &matcher{
		filters:  filters,
		patterns: make([]*regexp.Regexp, len(filters)),
	}

	for i, filter := range filters {
		if filter.Field == "" {
			return nil, fmt.Errorf("filter %d names no field: %w", i, ErrFilterInvalid)
		}
		if filter.Regex == "" {
			continue
		}

		pattern, err := regexp.Compile(filter.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", filter.Regex, ErrFilterInvalid)
		}
		m.patterns[i] = pattern
	}

	return m, nil
}

func (m *matcher) match(doc *types.Document) bool {
	for i, filter := range m.filters {
		value, ok := fieldValue(doc, filter.Field)

		if pattern := m.patterns[i]; pattern != nil {
			if !ok || !pattern.MatchString(stringify(value)) {
				return false
			}
			continue
		}

		if !ok || !looseEqual(value, filter.Equals) {
			return false
		}
	}
	return true
}

// fieldValue resolves a filter field on the document. "id" addresses the
// document id itself.
func fieldValue(doc *types.Document, field string) (interface{}, bool) {
	if field == "id" {
		return doc.ID, true
	}
	v, ok := doc.Fields[field]
	return v, ok
}

func stringify(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// looseEqual compares payload values. Numeric values are compared by their
// float form since JSON decoding does not preserve integer types.
func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
