package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/internal/taskrunner"
)

type fakeClient struct {
	s       *Scheduler
	actions []string

	// autoCommit answers a main frame with an immediate commit request.
	autoCommit bool
	// abortWith answers a main frame with an abort when set.
	abortWith  *cc.CommitEarlyOutReason
	drawResult DrawResult
	frames     int
}

func (c *fakeClient) record(a Action) { c.actions = append(c.actions, a.String()) }

func (c *fakeClient) WillBeginImplFrame(cc.BeginFrameArgs) { c.frames++ }

func (c *fakeClient) ScheduledActionSendBeginMainFrame(cc.BeginFrameArgs) {
	c.record(ActionSendBeginMainFrame)
	switch {
	case c.abortWith != nil:
		c.s.BeginMainFrameAborted(*c.abortWith)
	case c.autoCommit:
		c.s.NotifyBeginMainFrameStarted()
		c.s.NotifyReadyToCommit()
	}
}

func (c *fakeClient) ScheduledActionCommit()           { c.record(ActionCommit) }
func (c *fakeClient) ScheduledActionActivateSyncTree() { c.record(ActionActivateSyncTree) }
func (c *fakeClient) ScheduledActionPrepareTiles()     { c.record(ActionPrepareTiles) }
func (c *fakeClient) DidFinishImplFrame()              {}

func (c *fakeClient) ScheduledActionDrawAndSwap() DrawResult {
	c.record(ActionDrawAndSwap)
	return c.drawResult
}

func (c *fakeClient) ScheduledActionBeginOutputSurfaceCreation() {
	c.record(ActionBeginOutputSurfaceCreation)
	c.s.DidCreateAndInitializeOutputSurface()
}

func (c *fakeClient) count(a Action) int {
	n := 0
	for _, got := range c.actions {
		if got == a.String() {
			n++
		}
	}
	return n
}

type harness struct {
	s      *Scheduler
	client *fakeClient
	source *ManualBeginFrameSource
	runner *taskrunner.Manual
	now    time.Time
}

func newHarness(t *testing.T, settings Settings) *harness {
	t.Helper()
	h := &harness{
		client: &fakeClient{autoCommit: true},
		source: NewManualBeginFrameSource(16 * time.Millisecond),
		runner: taskrunner.NewManual(),
		now:    time.Unix(100, 0),
	}
	h.s = New(settings, h.client, h.source, h.runner)
	h.client.s = h.s
	t.Cleanup(h.s.Stop)
	h.s.SetVisible(true)
	return h
}

// frame ticks the source and runs everything it causes.
func (h *harness) frame() bool {
	h.now = h.now.Add(16 * time.Millisecond)
	ticked := h.source.Tick(h.now)
	h.runner.RunUntilIdle(1000)
	return ticked
}

func TestOutputSurfaceIsCreatedWhenVisible(t *testing.T) {
	h := newHarness(t, Settings{CommitToActiveTree: true})

	assert.Equal(t, []string{"begin_output_surface_creation"}, h.client.actions)
	assert.Equal(t, OutputSurfaceWaitingForFirstCommit, h.s.StateMachine().OutputSurfaceState())
	assert.True(t, h.source.Observed(), "first commit needs a frame")
}

func TestMainFrameRequestsCoalesce(t *testing.T) {
	h := newHarness(t, Settings{CommitToActiveTree: true})
	h.frame()
	h.s.DidSwapBuffersComplete()
	h.client.actions = nil

	for range 3 {
		h.s.SetNeedsBeginMainFrame()
	}
	h.frame()
	assert.Equal(t, []string{"send_begin_main_frame", "commit", "draw_and_swap"}, h.client.actions)

	h.s.DidSwapBuffersComplete()
	h.client.actions = nil
	assert.False(t, h.frame(), "idle scheduler does not observe")
	assert.Empty(t, h.client.actions)
	require.NoError(t, h.s.Ordering().Err())
}

func TestAbortedMainFrameDoesNotStall(t *testing.T) {
	tests := []struct {
		name       string
		reason     cc.CommitEarlyOutReason
		keepsFrame bool
	}{
		{"no updates", cc.CommitFinishedNoUpdates, false},
		{"not visible", cc.CommitAbortedNotVisible, true},
		{"deferred", cc.CommitAbortedDeferredCommit, true},
		{"surface lost", cc.CommitAbortedOutputSurfaceLost, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Settings{CommitToActiveTree: true})
			h.frame()
			h.s.DidSwapBuffersComplete()

			reason := tt.reason
			h.client.abortWith = &reason
			h.s.SetNeedsBeginMainFrame()
			h.frame()
			assert.Equal(t, MainFrameIdle, h.s.StateMachine().MainFrameState())
			assert.Equal(t, tt.keepsFrame, h.s.StateMachine().NeedsBeginMainFrame())
			assert.Equal(t, 1, h.s.StateMachine().AbortCount())

			h.client.abortWith = nil
			h.client.actions = nil
			h.s.SetNeedsBeginMainFrame()
			h.frame()
			assert.Equal(t, []string{"send_begin_main_frame", "commit", "draw_and_swap"}, h.client.actions)
			require.NoError(t, h.s.Ordering().Err())
		})
	}
}

func TestThreadedCommitWaitsForActivation(t *testing.T) {
	h := newHarness(t, Settings{MaxPendingSwaps: 2})
	h.frame()
	assert.Equal(t, 1, h.client.count(ActionCommit))
	assert.True(t, h.s.StateMachine().HasPendingTree())
	assert.Equal(t, OutputSurfaceWaitingForFirstActivation, h.s.StateMachine().OutputSurfaceState())

	// No new main frame while the pending tree waits.
	h.s.SetNeedsBeginMainFrame()
	h.frame()
	assert.Equal(t, 1, h.client.count(ActionSendBeginMainFrame))
	assert.Zero(t, h.client.count(ActionDrawAndSwap))

	h.s.NotifyReadyToActivate()
	assert.Equal(t, 1, h.client.count(ActionActivateSyncTree))
	assert.Equal(t, OutputSurfaceActive, h.s.StateMachine().OutputSurfaceState())

	h.frame()
	assert.Equal(t, 2, h.client.count(ActionSendBeginMainFrame))
	assert.Equal(t, 1, h.client.count(ActionDrawAndSwap))
	require.NoError(t, h.s.Ordering().Err())
}

func TestPendingSwapsThrottleDraws(t *testing.T) {
	h := newHarness(t, Settings{CommitToActiveTree: true, MaxPendingSwaps: 1})
	h.frame()
	require.Equal(t, 1, h.client.count(ActionDrawAndSwap))

	h.s.SetNeedsRedraw()
	h.frame()
	assert.Equal(t, 1, h.client.count(ActionDrawAndSwap), "swap not acknowledged")

	h.s.DidSwapBuffersComplete()
	h.frame()
	assert.Equal(t, 2, h.client.count(ActionDrawAndSwap))
}

func TestNoDamageClearsRedraw(t *testing.T) {
	h := newHarness(t, Settings{CommitToActiveTree: true})
	h.client.drawResult = DrawAbortedNoDamage
	h.frame()

	assert.False(t, h.s.StateMachine().NeedsRedraw())
	assert.Zero(t, h.s.StateMachine().PendingSwaps())
	assert.False(t, h.source.Observed())
}

func TestHiddenSchedulerIsIdle(t *testing.T) {
	h := newHarness(t, Settings{CommitToActiveTree: true})
	h.frame()
	h.s.SetVisible(false)
	h.s.SetNeedsBeginMainFrame()
	h.client.actions = nil

	assert.False(t, h.frame())
	assert.Empty(t, h.client.actions)

	h.s.SetVisible(true)
	h.frame()
	assert.Equal(t, 1, h.client.count(ActionSendBeginMainFrame))
}

func TestLostOutputSurfaceIsRecreated(t *testing.T) {
	h := newHarness(t, Settings{CommitToActiveTree: true})
	h.frame()
	h.client.actions = nil

	h.s.DidLoseOutputSurface()
	assert.Equal(t, []string{"begin_output_surface_creation"}, h.client.actions)

	h.frame()
	assert.Equal(t, OutputSurfaceActive, h.s.StateMachine().OutputSurfaceState())
	assert.Equal(t, 1, h.client.count(ActionCommit))
}

func TestStateMachineActionPriority(t *testing.T) {
	sm := NewStateMachine(Settings{})
	assert.Equal(t, ActionNone, sm.NextAction(), "hidden")

	sm.SetVisible(true)
	require.Equal(t, ActionBeginOutputSurfaceCreation, sm.NextAction())
	sm.WillPerform(ActionBeginOutputSurfaceCreation)
	sm.DidCreateAndInitializeOutputSurface()
	assert.Equal(t, ActionNone, sm.NextAction(), "outside a BeginFrame")

	sm.OnBeginImplFrame()
	require.Equal(t, ActionSendBeginMainFrame, sm.NextAction())
	sm.WillPerform(ActionSendBeginMainFrame)
	sm.NotifyReadyToCommit()
	require.Equal(t, ActionCommit, sm.NextAction())
	sm.WillPerform(ActionCommit)

	// Activation goes before everything but surface creation.
	sm.SetNeedsBeginMainFrame()
	sm.NotifyReadyToActivate()
	sm.OnBeginImplFrameDeadline()
	assert.Equal(t, ActionActivateSyncTree, sm.NextAction())
	sm.WillPerform(ActionActivateSyncTree)
	assert.Equal(t, ActionDrawAndSwap, sm.NextAction())
	sm.WillPerform(ActionDrawAndSwap)
	sm.DidDraw(DrawSuccess)
	assert.Equal(t, ActionNone, sm.NextAction(), "one main frame per BeginFrame")

	sm.OnBeginImplFrameIdle()
	sm.OnBeginImplFrame()
	assert.Equal(t, ActionSendBeginMainFrame, sm.NextAction())
}

func TestOrderingTracker(t *testing.T) {
	t.Run("full pipeline", func(t *testing.T) {
		o := NewOrderingTracker()
		o.OnBeginFrame(1)
		for _, s := range []FrameStage{
			StageBeginMainFrameSent, StageCommitStarted, StageCommitComplete,
			StagePendingTree, StageActivated, StageDrawn, StageSwapComplete,
		} {
			require.NoError(t, o.Advance(s), s.String())
		}
		assert.Empty(t, o.Stages())
		assert.Equal(t, 1, o.Completed())
		assert.Len(t, o.History(), 7)
	})

	t.Run("commit without main frame", func(t *testing.T) {
		o := NewOrderingTracker()
		err := o.Advance(StageCommitStarted)
		assert.True(t, errors.Is(err, ErrOutOfOrder))
		assert.Equal(t, err, o.Err())
	})

	t.Run("main frame before begin frame", func(t *testing.T) {
		o := NewOrderingTracker()
		assert.ErrorIs(t, o.Advance(StageBeginMainFrameSent), ErrOutOfOrder)
	})

	t.Run("two main frames for one begin frame", func(t *testing.T) {
		o := NewOrderingTracker()
		o.OnBeginFrame(1)
		require.NoError(t, o.Advance(StageBeginMainFrameSent))
		require.NoError(t, o.Advance(StageBeginMainFrameAborted))
		assert.ErrorIs(t, o.Advance(StageBeginMainFrameSent), ErrOutOfOrder)
	})

	t.Run("overtaken activation fails its swap", func(t *testing.T) {
		o := NewOrderingTracker()
		for seq := uint64(1); seq <= 2; seq++ {
			o.OnBeginFrame(seq)
			require.NoError(t, o.Advance(StageBeginMainFrameSent))
			require.NoError(t, o.Advance(StageCommitStarted))
			require.NoError(t, o.Advance(StageCommitComplete))
			require.NoError(t, o.Advance(StageActivated))
		}
		history := o.History()
		assert.Contains(t, history, Transition{BeginFrame: 1, From: StageActivated, To: StageSwapFailed})
		assert.Equal(t, []FrameStage{StageActivated}, o.Stages())
	})

	t.Run("redraw needs no frame", func(t *testing.T) {
		o := NewOrderingTracker()
		assert.NoError(t, o.Advance(StageDrawn))
		assert.NoError(t, o.Advance(StageSwapComplete))
	})
}

func TestSyntheticSourceTicksWhileObserved(t *testing.T) {
	src := NewSyntheticBeginFrameSource(time.Millisecond)
	got := make(chan cc.BeginFrameArgs, 8)
	obs := &chanObserver{c: got}
	src.AddObserver(obs)
	t.Cleanup(src.Stop)

	first := <-got
	second := <-got
	assert.True(t, first.IsValid())
	assert.Greater(t, second.SequenceNumber, first.SequenceNumber)
	assert.Equal(t, time.Millisecond, first.Interval)

	src.RemoveObserver(obs)
}

type chanObserver struct{ c chan cc.BeginFrameArgs }

func (o *chanObserver) OnBeginFrame(a cc.BeginFrameArgs) {
	select {
	case o.c <- a:
	default:
	}
}
