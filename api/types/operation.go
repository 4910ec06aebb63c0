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

// Operation is the kind of row-level mutation exchanged with the remote
// backend and recorded in the retry queue.
type Operation string

const (
	// OpInsert creates a row.
	OpInsert Operation = "INSERT"

	// OpUpdate replaces a row.
	OpUpdate Operation = "UPDATE"

	// OpDelete deletes a row. Locally this is a tombstone write; the
	// physical remote delete happens when the tombstone is pushed.
	OpDelete Operation = "DELETE"
)
