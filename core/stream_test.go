package core

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"usdacore/core/events"
)

func TestStreamBacklogAndLiveUpdates(t *testing.T) {
	s := NewStream()
	ctx := context.Background()
	require.NoError(t, s.Publish(ctx, []events.Event{
		events.SurplusRouted{Asset: "ETH", Amount: big.NewInt(1)},
		events.PauseToggled{Action: "cds.deposit", Paused: true},
	}))

	updates, cancel, backlog := s.Subscribe(ctx, "1", "")
	defer cancel()
	require.Len(t, backlog, 1)
	require.Equal(t, events.TypePauseToggled, backlog[0].Type)
	require.Equal(t, "2", backlog[0].Cursor)

	require.NoError(t, s.Publish(ctx, []events.Event{events.SurplusRouted{Asset: "ETH", Amount: big.NewInt(2)}}))
	select {
	case update := <-updates:
		require.EqualValues(t, 3, update.Sequence)
		require.Equal(t, "2", update.Attrs["amount"])
	case <-time.After(time.Second):
		t.Fatal("expected live update")
	}
}

func TestStreamFiltersByType(t *testing.T) {
	s := NewStream()
	ctx, stop := context.WithCancel(context.Background())
	updates, _, backlog := s.Subscribe(ctx, "", events.TypeSurplusRouted)
	require.Empty(t, backlog)

	require.NoError(t, s.Publish(ctx, []events.Event{
		events.PauseToggled{Action: "cds.deposit", Paused: true},
		events.SurplusRouted{Asset: "ETH", Amount: big.NewInt(9)},
	}))
	select {
	case update := <-updates:
		require.Equal(t, events.TypeSurplusRouted, update.Type)
	case <-time.After(time.Second):
		t.Fatal("expected filtered update")
	}

	stop()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
	require.Len(t, s.Latest(1), 1)
}
