package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChanPool(t *testing.T) {
	p := NewChanPool(2)
	require.Equal(t, 2, p.Cap())

	r1, ok := p.Acquire(context.Background())
	require.True(t, ok)
	r2, ok := p.Acquire(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, p.InUse())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, ok = p.Acquire(ctx)
	assert.False(t, ok)

	r1()
	r1()
	assert.Equal(t, 1, p.InUse())
	r2()
	assert.Equal(t, 0, p.InUse())
}

func TestNewChanPool_MinimumOneSlot(t *testing.T) {
	assert.Equal(t, 1, NewChanPool(0).Cap())
	assert.Equal(t, 1, NewChanPool(-3).Cap())
}
