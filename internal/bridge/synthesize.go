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
	"fmt"
	"log/slog"

	"github.com/tombee/fmbridge/internal/filemaker"
)

// Synthesize converts discovered script descriptors into registry entries.
// It is deterministic for a given input sequence: when two scripts
// normalize to the same tool name, the first-seen descriptor wins and
// later duplicates are dropped with a logged warning. Descriptors whose
// names normalize to nothing are dropped the same way. A missing
// description is replaced with a placeholder because protocol clients may
// reject empty descriptions.
func Synthesize(descriptors []filemaker.ScriptDescriptor, logger *slog.Logger) []Entry {
	if logger == nil {
		logger = slog.Default()
	}

	seen := make(map[string]string, len(descriptors)) // tool name -> script name
	entries := make([]Entry, 0, len(descriptors))

	for _, d := range descriptors {
		name := normalizeToolName(d.Name)
		if name == "" {
			logger.Warn("dropping script with unusable name", slog.String("script", d.Name))
			continue
		}
		if first, dup := seen[name]; dup {
			logger.Warn("dropping duplicate tool name",
				slog.String("tool", name),
				slog.String("script", d.Name),
				slog.String("kept_script", first),
			)
			continue
		}
		seen[name] = d.Name

		entries = append(entries, Entry{
			Schema:     synthesizeSchema(name, d),
			Descriptor: d,
		})
	}
	return entries
}

// synthesizeSchema derives the protocol schema for one descriptor.
func synthesizeSchema(toolName string, d filemaker.ScriptDescriptor) ToolSchema {
	description := d.Description
	if description == "" {
		description = fmt.Sprintf("FileMaker script %q.", d.Name)
	}

	params := make([]ParameterSchema, 0, len(d.Parameters))
	for _, p := range d.Parameters {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		params = append(params, ParameterSchema{
			Name:        p.Name,
			Type:        typ,
			Description: p.Description,
			Required:    p.Required,
		})
	}

	return ToolSchema{
		Name:        toolName,
		Description: description,
		Parameters:  params,
	}
}
