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
	"context"
	"encoding/json"
	"fmt"
	"strings"
	gosync "sync"
	gotime "time"

	"github.com/coder/websocket"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/sync"
)

var _ sync.Remote = (*Client)(nil)

// phoenixMessage is the realtime socket frame. The realtime service speaks
// the Phoenix channel protocol: join a topic, heartbeat, receive
// postgres_changes events.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

type changePayload struct {
	Data struct {
		Type   string         `json:"type"`
		Record map[string]any `json:"record"`
		Old    map[string]any `json:"old_record"`
	} `json:"data"`
}

// Subscribe opens a realtime subscription for the collection. The returned
// channel is closed when the context ends or the socket drops; the caller
// re-subscribes through its own retry cycle.
func (c *Client) Subscribe(
	ctx context.Context,
	collection types.EntityType,
) (<-chan sync.RemoteEvent, error) {
	endpoint := fmt.Sprintf(
		"%s/realtime/v1/websocket?apikey=%s&vsn=1.0.0",
		strings.Replace(strings.Replace(c.conf.BaseURL, "https://", "wss://", 1), "http://", "ws://", 1),
		c.conf.APIKey,
	)

	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial realtime: %w", err)
	}

	topic := fmt.Sprintf("realtime:public:%s", collection)
	join := phoenixMessage{
		Topic:   topic,
		Event:   "phx_join",
		Payload: json.RawMessage(`{}`),
		Ref:     "1",
	}
	if err := writeMessage(ctx, conn, join); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "join failed")
		return nil, fmt.Errorf("join %s: %w", topic, err)
	}

	events := make(chan sync.RemoteEvent, 64)
	var closeOnce gosync.Once
	closeConn := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			_ = conn.Close(code, reason)
		})
	}

	// The read loop is the sole sender on events and therefore the only
	// goroutine allowed to close it. A heartbeat failure only closes the
	// socket; the read loop then exits on the read error.
	go c.heartbeatLoop(ctx, conn, closeConn)
	go func() {
		defer close(events)
		defer closeConn(websocket.StatusNormalClosure, "read loop ended")
		c.readLoop(ctx, conn, collection, events)
	}()

	return events, nil
}

func (c *Client) heartbeatLoop(
	ctx context.Context,
	conn *websocket.Conn,
	closeConn func(websocket.StatusCode, string),
) {
	ticker := gotime.NewTicker(c.conf.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			closeConn(websocket.StatusNormalClosure, "subscription ended")
			return
		case <-ticker.C:
			heartbeat := phoenixMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
			}
			if err := writeMessage(ctx, conn, heartbeat); err != nil {
				if ctx.Err() == nil {
					c.logger.Warnf("realtime heartbeat: %s", err)
				}
				closeConn(websocket.StatusGoingAway, "heartbeat failed")
				return
			}
		}
	}
}

func (c *Client) readLoop(
	ctx context.Context,
	conn *websocket.Conn,
	collection types.EntityType,
	events chan<- sync.RemoteEvent,
) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warnf("realtime read: %s", err)
			}
			return
		}

		var msg phoenixMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warnf("realtime decode frame: %s", err)
			continue
		}

		event, ok, err := c.toRemoteEvent(collection, msg)
		if err != nil {
			c.logger.Warnf("realtime decode change: %s", err)
			continue
		}
		if !ok {
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return
		}
	}
}

// toRemoteEvent translates a postgres_changes frame into a RemoteEvent.
// Replies, heartbeat acks and presence frames report ok=false.
func (c *Client) toRemoteEvent(
	collection types.EntityType,
	msg phoenixMessage,
) (sync.RemoteEvent, bool, error) {
	if msg.Event != "postgres_changes" && msg.Event != "INSERT" &&
		msg.Event != "UPDATE" && msg.Event != "DELETE" {
		return sync.RemoteEvent{}, false, nil
	}

	var payload changePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return sync.RemoteEvent{}, false, err
	}

	record := payload.Data.Record
	if record == nil {
		record = payload.Data.Old
	}
	if record == nil {
		return sync.RemoteEvent{}, false, nil
	}

	doc, source, err := rowToDocument(record)
	if err != nil {
		return sync.RemoteEvent{}, false, err
	}

	op := types.OpUpdate
	switch {
	case payload.Data.Type == "INSERT" || msg.Event == "INSERT":
		op = types.OpInsert
	case payload.Data.Type == "DELETE" || msg.Event == "DELETE" || doc.Deleted:
		op = types.OpDelete
		doc.Deleted = true
	}

	return sync.RemoteEvent{
		Collection: collection,
		Op:         op,
		Doc:        doc,
		Source:     source,
	}, true, nil
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg phoenixMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*gotime.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
