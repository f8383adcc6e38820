package telemetry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "aurum", Version: "test"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))

	// The global no-op providers still hand out usable instruments.
	counter, err := Meter("aurum/test").Int64Counter("aurum.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	_, span := Tracer("aurum/test").Start(context.Background(), "noop")
	span.End()
}

func TestTenantAttribute(t *testing.T) {
	id := uuid.MustParse("7b0c51a2-3f1e-4a8e-9d3c-2f4b5a6c7d8e")
	kv := Tenant(id)
	assert.Equal(t, TenantKey, kv.Key)
	assert.Equal(t, id.String(), kv.Value.AsString())
}
