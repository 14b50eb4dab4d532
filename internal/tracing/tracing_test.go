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

package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/latchwork/durex/internal/tracing"
)

func TestNewDisabledInstallsNoopProvider(t *testing.T) {
	p, err := tracing.New(context.Background(), tracing.Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewEnabledStdoutExporter(t *testing.T) {
	p, err := tracing.New(context.Background(), tracing.Config{
		Enabled:     true,
		ServiceName: "durex-test",
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ctx, span := tracing.StartSpan(context.Background(), "test", "unit.span")
	require.NotNil(t, span)
	tracing.EndWithError(span, nil)
	span.End()
	_ = ctx
}

func TestEndWithErrorRecordsError(t *testing.T) {
	_, span := tracing.StartSpan(context.Background(), "test", "unit.span.err")
	tracing.EndWithError(span, errors.New("boom"))
	span.End()
}
