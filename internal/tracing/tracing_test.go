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

package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupWithoutEndpoint(t *testing.T) {
	ctx := context.Background()

	provider, err := Setup(ctx, Config{
		ServiceName:    "fmbridge-test",
		ServiceVersion: "0.0.0",
	})
	require.NoError(t, err)
	defer func() { require.NoError(t, provider.Shutdown(ctx)) }()

	// Span creation works with no exporter configured.
	_, span := otel.Tracer("test").Start(ctx, "noop")
	span.End()
}
