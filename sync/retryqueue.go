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
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	gotime "time"

	"github.com/rs/xid"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
)

// RetryEntry is a failed push persisted until it is retried successfully or
// abandoned after the retry ceiling.
type RetryEntry struct {
	ID         string
	Collection types.EntityType
	Op         types.Operation
	Doc        *types.Document
	CreatedAt  gotime.Time
	Retries    int
}

// RetryQueue persists failed pushes in a local sqlite database so they
// survive a restart. Each processing pass reads, retries and rewrites
// entries transactionally so closing the process mid-retry loses nothing.
type RetryQueue struct {
	db     *sql.DB
	logger logging.Logger
}

// OpenRetryQueue opens (and creates if needed) the queue at the given path.
// Use ":memory:" for a non-durable queue in tests.
func OpenRetryQueue(path string) (*RetryQueue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open retry queue %s: %w", path, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS retry_queue (
	id         TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	op         TEXT NOT NULL,
	document   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	retries    INTEGER NOT NULL DEFAULT 0,
	abandoned  INTEGER NOT NULL DEFAULT 0
);`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create retry queue schema: %w", err)
	}

	return &RetryQueue{
		db:     db,
		logger: logging.New("retryqueue"),
	}, nil
}

// Close closes the queue.
func (q *RetryQueue) Close() error {
	if err := q.db.Close(); err != nil {
		return fmt.Errorf("close retry queue: %w", err)
	}
	return nil
}

// Enqueue appends a failed push.
func (q *RetryQueue) Enqueue(
	ctx context.Context,
	collection types.EntityType,
	op types.Operation,
	doc *types.Document,
) (*RetryEntry, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal retry document: %w", err)
	}

	entry := &RetryEntry{
		ID:         xid.New().String(),
		Collection: collection,
		Op:         op,
		Doc:        doc.DeepCopy(),
		CreatedAt:  gotime.Now(),
	}

	if _, err := q.db.ExecContext(ctx, `
INSERT INTO retry_queue (id, collection, op, document, created_at, retries, abandoned)
VALUES (?, ?, ?, ?, ?, 0, 0)`,
		entry.ID, string(collection), string(op), string(raw), entry.CreatedAt.UTC(),
	); err != nil {
		return nil, fmt.Errorf("enqueue retry entry: %w", err)
	}

	return entry, nil
}

// Active returns the entries still eligible for retry, oldest first.
func (q *RetryQueue) Active(ctx context.Context) ([]*RetryEntry, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, collection, op, document, created_at, retries
FROM retry_queue WHERE abandoned = 0 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list retry entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*RetryEntry
	for rows.Next() {
		var (
			entry      RetryEntry
			collection string
			op         string
			document   string
		)
		if err := rows.Scan(
			&entry.ID, &collection, &op, &document, &entry.CreatedAt, &entry.Retries,
		); err != nil {
			return nil, fmt.Errorf("scan retry entry: %w", err)
		}

		entry.Collection = types.EntityType(collection)
		entry.Op = types.Operation(op)
		if err := json.Unmarshal([]byte(document), &entry.Doc); err != nil {
			return nil, fmt.Errorf("unmarshal retry document: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list retry entries: %w", err)
	}

	return entries, nil
}

// ActiveCount returns the number of entries eligible for retry.
func (q *RetryQueue) ActiveCount(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM retry_queue WHERE abandoned = 0`,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("count retry entries: %w", err)
	}
	return count, nil
}

// Process retries every active entry once with the given push function.
// Successful entries are removed; failed ones have their retry count
// incremented and are abandoned once the ceiling is reached. Each state
// change is committed in its own transaction so an interrupted pass never
// loses entries.
func (q *RetryQueue) Process(
	ctx context.Context,
	ceiling int,
	push func(ctx context.Context, entry *RetryEntry) error,
) (succeeded int, abandoned int, err error) {
	entries, err := q.Active(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return succeeded, abandoned, err
		}

		pushErr := push(ctx, entry)
		if pushErr == nil {
			if err := q.remove(ctx, entry.ID); err != nil {
				return succeeded, abandoned, err
			}
			succeeded++
			continue
		}

		entry.Retries++
		if entry.Retries >= ceiling {
			q.logger.Warnf(
				"abandon push of %s/%s after %d attempts: %s",
				entry.Collection, entry.Doc.ID, entry.Retries, pushErr,
			)
			if err := q.update(ctx, entry.ID, entry.Retries, true); err != nil {
				return succeeded, abandoned, err
			}
			abandoned++
			continue
		}

		if err := q.update(ctx, entry.ID, entry.Retries, false); err != nil {
			return succeeded, abandoned, err
		}
	}

	return succeeded, abandoned, nil
}

func (q *RetryQueue) remove(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx,
		`DELETE FROM retry_queue WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("remove retry entry %s: %w", id, err)
	}
	return nil
}

func (q *RetryQueue) update(ctx context.Context, id string, retries int, abandoned bool) error {
	flag := 0
	if abandoned {
		flag = 1
	}
	if _, err := q.db.ExecContext(ctx,
		`UPDATE retry_queue SET retries = ?, abandoned = ? WHERE id = ?`,
		retries, flag, id,
	); err != nil {
		return fmt.Errorf("update retry entry %s: %w", id, err)
	}
	return nil
}
