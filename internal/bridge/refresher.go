// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tombee/fmbridge/internal/filemaker"
	fmlog "github.com/tombee/fmbridge/internal/log"
)

// CatalogSource produces a catalog snapshot.
type CatalogSource interface {
	Discover(ctx context.Context) ([]filemaker.ScriptDescriptor, error)
}

// Refresher runs discovery passes, on demand and on a cron schedule, and
// rebuilds the registry from each successful pass. A failed pass leaves
// the previous registry snapshot serving; serving is never suspended while
// a refresh computes.
type Refresher struct {
	source   CatalogSource
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration

	onRebuild []func([]Entry)
	cron      *cron.Cron
}

// NewRefresher creates a refresher. timeout bounds each discovery pass.
func NewRefresher(source CatalogSource, registry *Registry, timeout time.Duration, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Refresher{
		source:   source,
		registry: registry,
		logger:   fmlog.WithComponent(logger, "refresher"),
		timeout:  timeout,
	}
}

// OnRebuild registers a callback invoked with the new entry set after each
// successful rebuild. Transports use this to resync their tool listings.
// Must be called before Start.
func (r *Refresher) OnRebuild(fn func([]Entry)) {
	r.onRebuild = append(r.onRebuild, fn)
}

// Refresh runs one discovery pass and swaps the registry on success. On
// failure the previous snapshot stays live and the error is returned.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	descriptors, err := r.source.Discover(ctx)
	if err != nil {
		r.logger.Warn("discovery failed, previous registry snapshot retained",
			fmlog.Error(err),
			slog.Int("tools", r.registry.Len()),
		)
		return err
	}

	entries := Synthesize(descriptors, r.logger)
	r.registry.Rebuild(entries)
	r.logger.Info("registry rebuilt", slog.Int("tools", len(entries)))

	for _, fn := range r.onRebuild {
		fn(entries)
	}
	return nil
}

// Start schedules periodic refreshes with the given five-field cron
// expression, evaluated in UTC. An empty schedule disables periodic
// refresh and Start is a no-op.
func (r *Refresher) Start(schedule string) error {
	if schedule == "" {
		return nil
	}
	if r.cron != nil {
		return fmt.Errorf("refresher already started")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(schedule, func() {
		if err := r.Refresh(context.Background()); err != nil {
			// Already logged in Refresh; nothing to escalate from a
			// scheduled pass.
			_ = err
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}

	r.cron = c
	c.Start()
	r.logger.Info("periodic refresh scheduled", slog.String("schedule", schedule))
	return nil
}

// Stop halts the periodic schedule, waiting for a running pass to finish.
func (r *Refresher) Stop() {
	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
}
