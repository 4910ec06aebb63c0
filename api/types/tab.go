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

// TabType discriminates tab descriptors.
type TabType string

// TabTypeChild binds a tab to rows of a child table scoped by a parent id
// field.
const TabTypeChild TabType = "child"

// ChildTable names the table a child tab reads from and the field holding
// the parent entity's id.
type ChildTable struct {
	Table       EntityType `json:"table"`
	ParentField string     `json:"parentField"`
}

// TabDescriptor describes which view a UI tab binds to. It is produced by
// the UI configuration layer and resolved by the entity facade into a scoped
// cursor query or live subscription.
type TabDescriptor struct {
	Type       TabType     `json:"type"`
	ChildTable *ChildTable `json:"childTable,omitempty"`
}

// TabKey identifies the loaded-count bookkeeping of one tab of one entity.
type TabKey struct {
	EntityID string
	TabID    string
}
