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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pawsync-team/pawsync/engine"
	"github.com/pawsync-team/pawsync/sync"
)

var (
	flagStatusWait time.Duration
	flagOutput     string
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [options]",
		Short: "Run one sync cycle and print the channel status of every collection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if flagConfPath != "" {
				parsed, err := engine.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			}

			e, err := engine.New(conf)
			if err != nil {
				return err
			}

			ctx := context.Background()
			if err := e.Start(ctx); err != nil {
				return err
			}
			defer func() {
				_ = e.Shutdown()
			}()

			// Give the channels one cycle to pull and subscribe before
			// taking the snapshot.
			time.Sleep(flagStatusWait)

			statuses := e.Syncer().Status(ctx)
			return printStatuses(cmd, flagOutput, statuses)
		},
	}

	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().DurationVar(
		&flagStatusWait,
		"wait",
		time.Second,
		"How long to let the channels run before the snapshot",
	)
	cmd.Flags().StringVarP(
		&flagOutput,
		"output",
		"o",
		"",
		"One of 'json' or empty for a table",
	)

	return cmd
}

func printStatuses(cmd *cobra.Command, output string, statuses []sync.Status) error {
	switch output {
	case "":
		tw := table.NewWriter()
		tw.Style().Options.DrawBorder = false
		tw.Style().Options.SeparateColumns = false
		tw.Style().Options.SeparateFooter = false
		tw.Style().Options.SeparateHeader = false
		tw.Style().Options.SeparateRows = false
		tw.AppendHeader(table.Row{
			"COLLECTION",
			"STATE",
			"LAST PULL",
			"LAST PUSH",
			"PENDING",
			"ERRORS",
		})
		for _, status := range statuses {
			tw.AppendRow(table.Row{
				status.Collection,
				status.State,
				formatTime(status.LastPullAt),
				formatTime(status.LastPushAt),
				status.PendingCount,
				strings.Join(status.RecentErrors, "; "),
			})
		}
		cmd.Printf("%s\n", tw.Render())
	case "json":
		jsonOutput, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON: %w", err)
		}
		cmd.Println(string(jsonOutput))
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	return nil
}

func formatTime(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.UTC().Format(time.RFC3339)
}
