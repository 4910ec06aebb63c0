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

// Package supabase implements the remote backend interface against a
// Supabase project: row reads and writes go through the PostgREST API and
// change notifications come from the realtime websocket.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	gotime "time"

	"github.com/pawsync-team/pawsync/api/types"
	"github.com/pawsync-team/pawsync/logging"
	"github.com/pawsync-team/pawsync/pkg/errors"
)

// Reserved row columns. Everything else in a row is document data.
const (
	columnID         = "id"
	columnModifiedOn = "modified_on"
	columnDeleted    = "_deleted"
	columnMerged     = "_merged"
	columnSyncSource = "_sync_source"
)

var (
	// ErrRowNotFound is returned by FindOne when no row has the given id.
	ErrRowNotFound = errors.NotFound("row not found").WithCode("ErrRowNotFound")

	// ErrBadResponse is returned when the backend answers outside 2xx.
	ErrBadResponse = errors.Unavailable("unexpected response").WithCode("ErrBadResponse")
)

// Config is the connection configuration of a Supabase project.
type Config struct {
	// BaseURL is the project URL, e.g. https://xyz.supabase.co.
	BaseURL string `yaml:"base-url"`

	// APIKey is the anon or service key sent with every request.
	APIKey string `yaml:"api-key"`

	// Timeout bounds each REST call.
	Timeout gotime.Duration `yaml:"timeout"`

	// HeartbeatInterval is the realtime socket heartbeat period.
	HeartbeatInterval gotime.Duration `yaml:"heartbeat-interval"`
}

func (c *Config) ensureDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 10 * gotime.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * gotime.Second
	}
}

// Client talks to the PostgREST and realtime endpoints of one project.
type Client struct {
	conf   Config
	http   *http.Client
	logger logging.Logger
}

// Dial creates a client for the project. It does not touch the network;
// the first Pull or Subscribe does.
func Dial(conf Config) (*Client, error) {
	conf.ensureDefaults()
	if _, err := url.Parse(conf.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	return &Client{
		conf:   conf,
		http:   &http.Client{Timeout: conf.Timeout},
		logger: logging.New("supabase"),
	}, nil
}

// Pull fetches all rows of the collection ordered by modified_on
// descending.
func (c *Client) Pull(ctx context.Context, collection types.EntityType) ([]*types.Document, error) {
	endpoint := fmt.Sprintf(
		"%s/rest/v1/%s?select=*&order=%s.desc,%s.asc",
		c.conf.BaseURL, collection, columnModifiedOn, columnID,
	)

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("pull %s: %w", collection, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("pull %s: decode rows: %w", collection, err)
	}

	docs := make([]*types.Document, 0, len(rows))
	for _, r := range rows {
		doc, _, err := rowToDocument(r)
		if err != nil {
			return nil, fmt.Errorf("pull %s: %w", collection, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Push upserts one row, stamping it with the given _sync_source marker.
// Deletes are soft: the tombstone row is upserted with _deleted set so
// other replicas see the removal through the same change stream.
func (c *Client) Push(
	ctx context.Context,
	collection types.EntityType,
	op types.Operation,
	doc *types.Document,
	source string,
) error {
	row := documentToRow(doc, source)
	if op == types.OpDelete {
		row[columnDeleted] = true
	}

	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("push %s/%s: encode row: %w", collection, doc.ID, err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/%s?on_conflict=%s", c.conf.BaseURL, collection, columnID)
	headers := map[string]string{
		"Prefer": "resolution=merge-duplicates,return=minimal",
	}
	if _, err := c.do(ctx, http.MethodPost, endpoint, payload, headers); err != nil {
		return fmt.Errorf("push %s/%s: %w", collection, doc.ID, err)
	}
	return nil
}

// FindOne fetches a single row by id.
func (c *Client) FindOne(
	ctx context.Context,
	collection types.EntityType,
	id string,
) (*types.Document, error) {
	endpoint := fmt.Sprintf(
		"%s/rest/v1/%s?select=*&%s=eq.%s&limit=1",
		c.conf.BaseURL, collection, columnID, url.QueryEscape(id),
	)

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("find %s/%s: decode rows: %w", collection, id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, ErrRowNotFound)
	}

	doc, _, err := rowToDocument(rows[0])
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (c *Client) do(
	ctx context.Context,
	method, endpoint string,
	payload []byte,
	headers map[string]string,
) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.conf.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.conf.APIKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warnf("close response body: %s", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s %s: status %d: %w", method, endpoint, resp.StatusCode, ErrBadResponse)
	}
	return data, nil
}

// documentToRow flattens a document into a PostgREST row. Data fields sit
// beside the reserved columns; reserved names in data are shadowed.
func documentToRow(doc *types.Document, source string) map[string]any {
	row := make(map[string]any, len(doc.Fields)+5)
	for k, v := range doc.Fields {
		row[k] = v
	}
	row[columnID] = doc.ID
	row[columnModifiedOn] = doc.ModifiedOn.UTC().Format(gotime.RFC3339Nano)
	row[columnDeleted] = doc.Deleted
	row[columnMerged] = doc.Merged
	row[columnSyncSource] = source
	return row
}

// rowToDocument lifts a PostgREST row back into a document, returning the
// row's _sync_source marker alongside.
func rowToDocument(row map[string]any) (*types.Document, string, error) {
	id, ok := row[columnID].(string)
	if !ok || id == "" {
		return nil, "", fmt.Errorf("row has no id: %w", ErrBadResponse)
	}

	doc := &types.Document{
		ID:     id,
		Fields: make(map[string]any, len(row)),
	}

	if raw, ok := row[columnModifiedOn].(string); ok {
		at, err := gotime.Parse(gotime.RFC3339Nano, raw)
		if err != nil {
			return nil, "", fmt.Errorf("row %s: parse %s: %w", id, columnModifiedOn, err)
		}
		doc.ModifiedOn = at
	}
	if deleted, ok := row[columnDeleted].(bool); ok {
		doc.Deleted = deleted
	}
	if merged, ok := row[columnMerged].(bool); ok {
		doc.Merged = merged
	}
	source, _ := row[columnSyncSource].(string)

	for k, v := range row {
		switch k {
		case columnID, columnModifiedOn, columnDeleted, columnMerged, columnSyncSource:
		default:
			doc.Fields[k] = v
		}
	}
	return doc, source, nil
}
