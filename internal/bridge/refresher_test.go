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
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/fmbridge/internal/filemaker"
)

// fakeCatalog is a CatalogSource double.
type fakeCatalog struct {
	descriptors []filemaker.ScriptDescriptor
	err         error
	calls       int
}

func (f *fakeCatalog) Discover(ctx context.Context) ([]filemaker.ScriptDescriptor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.descriptors, nil
}

func TestRefreshRebuildsRegistry(t *testing.T) {
	source := &fakeCatalog{descriptors: []filemaker.ScriptDescriptor{{Name: "GetOrders"}}}
	registry := NewRegistry()
	r := NewRefresher(source, registry, time.Second, slog.Default())

	require.NoError(t, r.Refresh(context.Background()))
	assert.Equal(t, 1, registry.Len())

	_, ok := registry.Get("GetOrders")
	assert.True(t, ok)
}

func TestRefreshFailureRetainsPreviousSnapshot(t *testing.T) {
	source := &fakeCatalog{descriptors: []filemaker.ScriptDescriptor{{Name: "GetOrders"}}}
	registry := NewRegistry()
	r := NewRefresher(source, registry, time.Second, slog.Default())

	require.NoError(t, r.Refresh(context.Background()))
	require.Equal(t, 1, registry.Len())

	source.err = &filemaker.DiscoveryError{Cause: context.DeadlineExceeded}
	err := r.Refresh(context.Background())
	require.Error(t, err)

	// The working registry must survive a failed pass.
	assert.Equal(t, 1, registry.Len())
	_, ok := registry.Get("GetOrders")
	assert.True(t, ok)
}

func TestRefreshEmptyCatalogIsValid(t *testing.T) {
	source := &fakeCatalog{}
	registry := NewRegistry()
	registry.Rebuild(makeEntries("old", 2))

	r := NewRefresher(source, registry, time.Second, slog.Default())
	require.NoError(t, r.Refresh(context.Background()))
	assert.Zero(t, registry.Len(), "an empty catalog empties the registry without error")
}

func TestRefreshNotifiesListeners(t *testing.T) {
	source := &fakeCatalog{descriptors: []filemaker.ScriptDescriptor{{Name: "A"}, {Name: "B"}}}
	registry := NewRegistry()
	r := NewRefresher(source, registry, time.Second, slog.Default())

	var got []Entry
	r.OnRebuild(func(entries []Entry) { got = entries })

	require.NoError(t, r.Refresh(context.Background()))
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Schema.Name)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	r := NewRefresher(&fakeCatalog{}, NewRegistry(), time.Second, slog.Default())
	err := r.Start("not a cron expression")
	require.Error(t, err)
}

func TestStartEmptyScheduleIsNoop(t *testing.T) {
	r := NewRefresher(&fakeCatalog{}, NewRegistry(), time.Second, slog.Default())
	require.NoError(t, r.Start(""))
	r.Stop()
}
