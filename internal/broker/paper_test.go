package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubmitMarketOrderDuplicateIdempotencyKeyNoSideEffect(t *testing.T) {
	b := NewPaper(100000)
	ctx := context.Background()

	res1, err := b.SubmitMarketOrder(ctx, "AAPL", SideBuy, 10, "key-1", nil)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, res1.Status)

	res2, err := b.SubmitMarketOrder(ctx, "AAPL", SideBuy, 10, "key-1", nil)
	require.NoError(t, err)
	require.Equal(t, StatusDuplicate, res2.Status)
	require.Equal(t, res1.OrderID, res2.OrderID)

	positions, err := b.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, 10.0, positions[0].Qty, "duplicate submit must not double the fill")
}

func TestFlattenAllZeroesPositions(t *testing.T) {
	b := NewPaper(100000)
	ctx := context.Background()
	b.SetPosition("AAPL", 10, 150)
	b.SetPosition("SQQQ", 30, 20)

	require.NoError(t, b.FlattenAll(ctx))

	positions, err := b.GetPositions(ctx)
	require.NoError(t, err)
	require.Empty(t, positions)
}
