package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restartcheck/restartcheck/internal/probe"
)

// stubProber answers with whatever fn returns, or a zero result without fn.
type stubProber struct {
	fn func(ctx context.Context, target string) (probe.Result, error)
}

func (s *stubProber) Check(ctx context.Context, target string) (probe.Result, error) {
	if s.fn != nil {
		return s.fn(ctx, target)
	}
	return probe.Result{}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcherNeverExceedsLimit(t *testing.T) {
	const limit = 7
	var current, peak atomic.Int64
	prober := &stubProber{fn: func(ctx context.Context, target string) (probe.Result, error) {
		cur := current.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return probe.Result{}, nil
	}}

	d := NewDispatcher(context.Background(), prober, limit, time.Minute)
	handles := make([]*Handle, 0, 40)
	for i := 0; i < 40; i++ {
		handles = append(handles, d.Submit(NodeTarget{Name: fmt.Sprintf("n%d", i)}))
	}
	for _, h := range handles {
		out := <-h.done
		require.NoError(t, out.err)
	}
	d.Shutdown()

	assert.LessOrEqual(t, int(peak.Load()), limit)
	assert.LessOrEqual(t, d.Peak(), limit)
	assert.Greater(t, d.Peak(), 1, "load this size should overlap probes")
}

func TestDispatcherRunsProbesInParallel(t *testing.T) {
	prober := &stubProber{fn: func(ctx context.Context, target string) (probe.Result, error) {
		time.Sleep(100 * time.Millisecond)
		return probe.Result{}, nil
	}}

	d := NewDispatcher(context.Background(), prober, 10, time.Minute)
	started := time.Now()
	handles := make([]*Handle, 0, 50)
	for i := 0; i < 50; i++ {
		handles = append(handles, d.Submit(NodeTarget{Name: fmt.Sprintf("n%d", i)}))
	}
	for _, h := range handles {
		<-h.done
	}
	d.Shutdown()
	elapsed := time.Since(started)

	// 50 probes of 100ms on 10 workers need at least 5 full batches, but
	// nowhere near the 5s a serial walk would take.
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestSubmitBlocksWhenSaturated(t *testing.T) {
	release := make(chan struct{})
	prober := &stubProber{fn: func(ctx context.Context, target string) (probe.Result, error) {
		<-release
		return probe.Result{}, nil
	}}

	d := NewDispatcher(context.Background(), prober, 1, time.Minute)
	first := d.Submit(NodeTarget{Name: "n1"})

	submitted := make(chan *Handle)
	go func() { submitted <- d.Submit(NodeTarget{Name: "n2"}) }()

	select {
	case <-submitted:
		t.Fatal("second submit returned while the only worker was busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	second := <-submitted
	require.NoError(t, (<-first.done).err)
	require.NoError(t, (<-second.done).err)
	d.Shutdown()
}

func TestDispatcherProbeTimeout(t *testing.T) {
	prober := &stubProber{fn: func(ctx context.Context, target string) (probe.Result, error) {
		select {
		case <-ctx.Done():
			return probe.Result{}, probe.Classify(ctx.Err())
		case <-time.After(10 * time.Second):
			return probe.Result{}, nil
		}
	}}

	d := NewDispatcher(context.Background(), prober, 1, 50*time.Millisecond)
	h := d.Submit(NodeTarget{Name: "n1"})
	out := <-h.done
	d.Shutdown()

	require.Error(t, out.err)
	var perr *probe.Error
	require.ErrorAs(t, out.err, &perr)
	assert.Equal(t, probe.KindTransport, perr.Kind)
}

func TestDispatcherRecoversFromPanickingProber(t *testing.T) {
	prober := &stubProber{fn: func(ctx context.Context, target string) (probe.Result, error) {
		if target == "bad" {
			panic("nil registry")
		}
		return probe.Result{PendingRestart: true}, nil
	}}

	d := NewDispatcher(context.Background(), prober, 2, time.Minute)
	bad := d.Submit(NodeTarget{Name: "bad"})
	good := d.Submit(NodeTarget{Name: "good"})

	out := <-bad.done
	require.Error(t, out.err)
	assert.Contains(t, out.err.Error(), "panicked")

	require.NoError(t, (<-good.done).err)
	d.Shutdown()
}

func TestDispatcherResolvesEveryHandleOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prober := &stubProber{fn: func(ctx context.Context, target string) (probe.Result, error) {
		<-ctx.Done()
		return probe.Result{}, probe.Classify(ctx.Err())
	}}

	d := NewDispatcher(ctx, prober, 5, time.Minute)
	handles := make(chan *Handle, 20)
	go func() {
		for i := 0; i < 20; i++ {
			handles <- d.Submit(NodeTarget{Name: fmt.Sprintf("n%d", i)})
		}
		close(handles)
	}()

	// Cancel while submissions are still backed up behind busy workers;
	// every handle must still resolve.
	time.Sleep(30 * time.Millisecond)
	cancel()

	resolved := 0
	for h := range handles {
		out := <-h.done
		require.Error(t, out.err)
		resolved++
	}
	d.Shutdown()
	assert.Equal(t, 20, resolved)
}
