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
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pawsync-team/pawsync/engine"
)

var gracefulTimeout = 10 * time.Second

var (
	flagConfPath string
	flagLogLevel string

	flagRetryQueuePath string
	flagSupabaseURL    string
	flagSupabaseKey    string

	conf = engine.NewConfig()
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [options]",
		Short: "Run the sync engine as a daemon",
		RunE: func(_ *cobra.Command, _ []string) error {
			// If config file is given, command-line arguments will be
			// overwritten.
			if flagConfPath != "" {
				parsed, err := engine.NewConfigFromFile(flagConfPath)
				if err != nil {
					return err
				}
				conf = parsed
			} else {
				conf.LogLevel = flagLogLevel
				conf.RetryQueuePath = flagRetryQueuePath
				conf.Supabase.BaseURL = flagSupabaseURL
				conf.Supabase.APIKey = flagSupabaseKey
			}

			e, err := engine.New(conf)
			if err != nil {
				return err
			}

			if err := e.Start(context.Background()); err != nil {
				return err
			}

			if code := handleSignal(e); code != 0 {
				return fmt.Errorf("exit code: %d", code)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(
		&flagConfPath,
		"config",
		"c",
		"",
		"Config path",
	)
	cmd.Flags().StringVarP(
		&flagLogLevel,
		"log-level",
		"l",
		engine.DefaultLogLevel,
		"Log level: debug, info, warn, error",
	)
	cmd.Flags().StringVar(
		&flagRetryQueuePath,
		"retry-queue-path",
		engine.DefaultRetryQueuePath,
		"Path of the durable retry queue database",
	)
	cmd.Flags().StringVar(
		&flagSupabaseURL,
		"supabase-url",
		"",
		"Supabase project URL; empty runs local-only on the in-memory remote",
	)
	cmd.Flags().StringVar(
		&flagSupabaseKey,
		"supabase-key",
		"",
		"Supabase API key",
	)

	return cmd
}

func handleSignal(e *engine.Engine) int {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	<-sigCh

	gracefulCh := make(chan struct{})
	go func() {
		if err := e.Shutdown(); err != nil {
			return
		}
		close(gracefulCh)
	}()

	select {
	case <-sigCh:
		return 1
	case <-time.After(gracefulTimeout):
		return 1
	case <-gracefulCh:
		return 0
	}
}
