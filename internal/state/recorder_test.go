package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRecorderCapturesBusEvents(t *testing.T) {
	bus := NewEventBus()
	recorder := NewEventRecorder(bus, 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Start(ctx)

	bus.Publish(ClaimConfirmed, WithdrawalEvent{Account: "0xabc", Nonce: 7, Status: "claimed"})
	bus.Publish(BalanceCorrected, ReconcileEvent{Account: "0xabc", Reported: "10", Recomputed: "9"})

	require.Eventually(t, func() bool {
		return len(recorder.Recent(0)) == 2
	}, 2*time.Second, 10*time.Millisecond)

	recent := recorder.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, BalanceCorrected.String(), recent[0].Type)
}

func TestEventRecorderRingDropsOldest(t *testing.T) {
	bus := NewEventBus()
	recorder := NewEventRecorder(bus, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recorder.Start(ctx)

	for i := uint64(1); i <= 3; i++ {
		bus.Publish(ProofReady, WithdrawalEvent{Nonce: i, Status: "proof_ready"})
	}

	require.Eventually(t, func() bool {
		recent := recorder.Recent(0)
		if len(recent) != 2 {
			return false
		}
		newest, ok := recent[0].Data.(WithdrawalEvent)
		return ok && newest.Nonce == 3
	}, 2*time.Second, 10*time.Millisecond)
}
