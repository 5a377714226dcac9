package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAllAggregates(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(ctx context.Context) Status { return Ok() })
	r.Register("custody", func(ctx context.Context) Status { return Fail("connection refused") })

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	require.Len(t, statuses, 2)
	assert.Equal(t, "database", statuses[0].Name)
	assert.True(t, statuses[0].Healthy)
	assert.Equal(t, "custody", statuses[1].Name)
	assert.Equal(t, "connection refused", statuses[1].Detail)
}

func TestCheckAllHealthyWhenEmpty(t *testing.T) {
	healthy, statuses := NewRegistry().CheckAll(context.Background())
	assert.True(t, healthy)
	assert.Empty(t, statuses)
}

func TestRegisterReplacesByName(t *testing.T) {
	r := NewRegistry()
	r.Register("database", func(ctx context.Context) Status { return Fail("down") })
	r.Register("database", func(ctx context.Context) Status { return Ok() })

	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy)
	require.Len(t, statuses, 1)
}
