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
	"sync/atomic"

	"github.com/tombee/fmbridge/internal/filemaker"
	"github.com/tombee/fmbridge/internal/metrics"
)

// Entry binds one tool schema to the script descriptor it was derived
// from. The dispatcher uses the descriptor for the remote call; no handler
// code is generated per tool.
type Entry struct {
	Schema     ToolSchema
	Descriptor filemaker.ScriptDescriptor
}

// snapshot is one immutable registry generation.
type snapshot struct {
	order   []string
	entries map[string]Entry
}

var emptySnapshot = &snapshot{entries: map[string]Entry{}}

// Registry is the live mapping from tool name to entry, consumed by every
// transport. Rebuild swaps the whole snapshot atomically: readers observe
// either the old complete mapping or the new one, never a mix, and reads
// never block.
type Registry struct {
	snap atomic.Pointer[snapshot]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.snap.Store(emptySnapshot)
	return r
}

// Rebuild replaces the entire mapping with the given entries. Order is
// preserved for List. Entries must already be deduplicated (Synthesize
// guarantees this).
func (r *Registry) Rebuild(entries []Entry) {
	next := &snapshot{
		order:   make([]string, 0, len(entries)),
		entries: make(map[string]Entry, len(entries)),
	}
	for _, e := range entries {
		next.order = append(next.order, e.Schema.Name)
		next.entries[e.Schema.Name] = e
	}
	r.snap.Store(next)
	metrics.SetRegistrySize(len(entries))
}

// Get returns the entry for toolName, or ok=false when the tool is not in
// the current snapshot.
func (r *Registry) Get(toolName string) (Entry, bool) {
	snap := r.snap.Load()
	e, ok := snap.entries[toolName]
	return e, ok
}

// List returns the full current schema set in catalog order.
func (r *Registry) List() []ToolSchema {
	snap := r.snap.Load()
	schemas := make([]ToolSchema, 0, len(snap.order))
	for _, name := range snap.order {
		schemas = append(schemas, snap.entries[name].Schema)
	}
	return schemas
}

// Len returns the number of tools in the current snapshot.
func (r *Registry) Len() int {
	return len(r.snap.Load().order)
}
