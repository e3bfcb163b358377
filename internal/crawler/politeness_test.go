package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingPauser struct {
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) error {
	p.delays = append(p.delays, delay)
	return nil
}

func TestTimerPauserHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := TimerPauser{}.Pause(ctx, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestThrottleDelayWithinBounds(t *testing.T) {
	t.Parallel()

	pauser := &recordingPauser{}
	throttle := NewThrottle(200*time.Millisecond, 600*time.Millisecond, pauser)
	for i := 0; i < 50; i++ {
		require.NoError(t, throttle.Wait(context.Background()))
	}
	require.Len(t, pauser.delays, 50)
	for _, d := range pauser.delays {
		require.GreaterOrEqual(t, d, 200*time.Millisecond)
		require.Less(t, d, 800*time.Millisecond)
	}
}

func TestNilThrottleIsNoop(t *testing.T) {
	t.Parallel()

	var throttle *Throttle
	require.NoError(t, throttle.Wait(context.Background()))
	require.Zero(t, throttle.Delay())
}
