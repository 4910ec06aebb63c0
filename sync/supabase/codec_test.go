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

package supabase

import (
	"encoding/json"
	"testing"
	gotime "time"

	"github.com/stretchr/testify/assert"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/sync"
)

func TestRowCodec(t *testing.T) {
	stamp := gotime.Date(2026, gotime.March, 14, 12, 0, 0, 0, gotime.UTC)

	t.Run("document to row and back test", func(t *testing.T) {
		doc := &types.Document{
			ID: "rex",
			Fields: map[string]any{
				"name":     "Rex",
				"breed_id": "akita",
			},
			ModifiedOn: stamp,
			Merged:     true,
		}

		row := documentToRow(doc, "rxdb:replica-1")
		assert.Equal(t, "rex", row[columnID])
		assert.Equal(t, "rxdb:replica-1", row[columnSyncSource])
		assert.Equal(t, false, row[columnDeleted])
		assert.Equal(t, true, row[columnMerged])
		assert.Equal(t, "Rex", row["name"])

		decoded, source, err := rowToDocument(row)
		assert.NoError(t, err)
		assert.Equal(t, "rxdb:replica-1", source)
		assert.Equal(t, doc.ID, decoded.ID)
		assert.Equal(t, doc.Fields, decoded.Fields)
		assert.True(t, decoded.ModifiedOn.Equal(stamp))
		assert.True(t, decoded.Merged)
		assert.False(t, decoded.Deleted)
	})

	t.Run("reserved columns never leak into fields test", func(t *testing.T) {
		row := documentToRow(&types.Document{
			ID:         "rex",
			Fields:     map[string]any{"name": "Rex"},
			ModifiedOn: stamp,
		}, sync.SourceRemote)

		decoded, _, err := rowToDocument(row)
		assert.NoError(t, err)
		for _, reserved := range []string{
			columnID, columnModifiedOn, columnDeleted, columnMerged, columnSyncSource,
		} {
			_, ok := decoded.Fields[reserved]
			assert.False(t, ok, reserved)
		}
	})

	t.Run("row without id is rejected test", func(t *testing.T) {
		_, _, err := rowToDocument(map[string]any{"name": "Rex"})
		assert.ErrorIs(t, err, ErrBadResponse)
	})

	t.Run("bad stamp is rejected test", func(t *testing.T) {
		_, _, err := rowToDocument(map[string]any{
			columnID:         "rex",
			columnModifiedOn: "yesterday",
		})
		assert.Error(t, err)
	})
}

func TestRealtimeFrames(t *testing.T) {
	client := &Client{conf: Config{}}
	stamp := gotime.Date(2026, gotime.March, 14, 12, 0, 0, 0, gotime.UTC)

	change := func(kind string) phoenixMessage {
		payload, _ := json.Marshal(map[string]any{
			"data": map[string]any{
				"type": kind,
				"record": map[string]any{
					columnID:         "rex",
					columnModifiedOn: stamp.Format(gotime.RFC3339Nano),
					columnSyncSource: "rxdb:replica-1",
					"name":           "Rex",
				},
			},
		})
		return phoenixMessage{
			Topic:   "realtime:public:pet",
			Event:   "postgres_changes",
			Payload: payload,
		}
	}

	t.Run("postgres changes become remote events test", func(t *testing.T) {
		event, ok, err := client.toRemoteEvent(types.EntityPet, change("INSERT"))
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, types.OpInsert, event.Op)
		assert.Equal(t, "rxdb:replica-1", event.Source)
		assert.Equal(t, "rex", event.Doc.ID)

		event, ok, err = client.toRemoteEvent(types.EntityPet, change("DELETE"))
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, types.OpDelete, event.Op)
		assert.True(t, event.Doc.Deleted)
	})

	t.Run("protocol frames are skipped test", func(t *testing.T) {
		_, ok, err := client.toRemoteEvent(types.EntityPet, phoenixMessage{
			Topic:   "phoenix",
			Event:   "phx_reply",
			Payload: json.RawMessage(`{}`),
		})
		assert.NoError(t, err)
		assert.False(t, ok)
	})
}
