/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/blnkfinance/grantflow/config"
)

func TestSetupOTelSDK(t *testing.T) {
	config.MockConfig(&config.Configuration{
		Tracing: config.TracingConfig{Endpoint: "localhost:4318", Insecure: true},
	})
	ctx := context.Background()

	shutdown, err := SetupOTelSDK(ctx, "grantflow-test")
	require.NoError(t, err)

	_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	assert.True(t, ok)

	assert.NoError(t, shutdown(ctx))
	assert.NoError(t, shutdown(ctx), "second shutdown is a no-op")
}
