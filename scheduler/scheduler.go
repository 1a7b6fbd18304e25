package scheduler

import (
	"time"

	"github.com/gogpu/cc"
	"github.com/gogpu/cc/internal/taskrunner"
)

// Client performs the actions picked by a Scheduler. Methods are called
// on the impl goroutine and may call back into the Scheduler.
type Client interface {
	WillBeginImplFrame(args cc.BeginFrameArgs)
	ScheduledActionSendBeginMainFrame(args cc.BeginFrameArgs)
	ScheduledActionCommit()
	ScheduledActionActivateSyncTree()
	ScheduledActionDrawAndSwap() DrawResult
	ScheduledActionBeginOutputSurfaceCreation()
	ScheduledActionPrepareTiles()
	DidFinishImplFrame()
}

// Scheduler runs the state machine of one compositor. It observes its
// BeginFrameSource only while the state machine needs frames.
//
// BeginFrames are posted to the impl runner; every other method must be
// called on it.
type Scheduler struct {
	client Client
	source BeginFrameSource
	runner taskrunner.TaskRunner

	sm       *StateMachine
	ordering *OrderingTracker

	args cc.BeginFrameArgs
	// deadlinePosted and earlyPosted hold the sequence number of the
	// frame whose deadline task was last posted.
	deadlinePosted uint64
	earlyPosted    uint64
	observing      bool
	processing     bool
	stopped        bool
}

// New returns a scheduler. It does nothing until SetVisible(true).
func New(settings Settings, client Client, source BeginFrameSource, runner taskrunner.TaskRunner) *Scheduler {
	return &Scheduler{
		client:   client,
		source:   source,
		runner:   runner,
		sm:       NewStateMachine(settings),
		ordering: NewOrderingTracker(),
	}
}

// StateMachine returns the state machine, for inspection.
func (s *Scheduler) StateMachine() *StateMachine { return s.sm }

// Ordering returns the frame ordering tracker.
func (s *Scheduler) Ordering() *OrderingTracker { return s.ordering }

// Observing reports whether the scheduler observes its source.
func (s *Scheduler) Observing() bool { return s.observing }

// OnBeginFrame implements BeginFrameObserver. It may be called from any
// goroutine.
func (s *Scheduler) OnBeginFrame(args cc.BeginFrameArgs) {
	if err := s.runner.PostTask(func() { s.beginImplFrame(args) }); err != nil {
		cc.Logger().Debug("scheduler: begin frame dropped", "seq", args.SequenceNumber, "err", err)
	}
}

func (s *Scheduler) beginImplFrame(args cc.BeginFrameArgs) {
	if s.stopped {
		return
	}
	if s.sm.ImplFrameState() != ImplFrameIdle {
		// The previous frame is late: finish it first.
		s.onDeadline(s.args.SequenceNumber)
	}
	if !s.sm.BeginFrameNeeded() {
		s.updateObserving()
		return
	}
	s.args = args
	s.sm.OnBeginImplFrame()
	s.ordering.OnBeginFrame(args.SequenceNumber)
	cc.Logger().Debug("scheduler: begin impl frame", "seq", args.SequenceNumber, "state", s.sm)
	s.client.WillBeginImplFrame(args)
	s.processScheduledActions()
	if s.sm.ImplFrameState() == ImplFrameInsideBeginFrame && s.deadlinePosted != args.SequenceNumber {
		s.postDeadline(args.Deadline.Sub(args.FrameTime))
	}
}

// postDeadline schedules the draw phase of the current frame.
func (s *Scheduler) postDeadline(delay time.Duration) {
	seq := s.args.SequenceNumber
	s.deadlinePosted = seq
	task := func() { s.onDeadline(seq) }
	var err error
	if delay > 0 {
		err = s.runner.PostDelayedTask(delay, task)
	} else {
		err = s.runner.PostTask(task)
	}
	if err != nil {
		cc.Logger().Debug("scheduler: deadline dropped", "seq", seq, "err", err)
	}
}

func (s *Scheduler) onDeadline(seq uint64) {
	if s.stopped || seq != s.args.SequenceNumber || s.sm.ImplFrameState() != ImplFrameInsideBeginFrame {
		return
	}
	s.sm.OnBeginImplFrameDeadline()
	s.processScheduledActions()
	s.sm.OnBeginImplFrameIdle()
	s.client.DidFinishImplFrame()
	s.processScheduledActions()
}

// processScheduledActions performs actions until the state machine has
// none. Calls made by the client while an action runs only update state;
// the loop picks up their consequences.
func (s *Scheduler) processScheduledActions() {
	if s.processing || s.stopped {
		return
	}
	s.processing = true
	defer func() { s.processing = false }()

	for {
		action := s.sm.NextAction()
		if action == ActionNone {
			break
		}
		cc.Logger().Debug("scheduler: action", "action", action, "state", s.sm)
		s.sm.WillPerform(action)
		switch action {
		case ActionSendBeginMainFrame:
			s.advance(StageBeginMainFrameSent)
			s.client.ScheduledActionSendBeginMainFrame(s.args)
		case ActionCommit:
			s.advance(StageCommitStarted)
			s.client.ScheduledActionCommit()
			s.advance(StageCommitComplete)
			if s.sm.HasPendingTree() {
				s.advance(StagePendingTree)
			} else {
				s.advance(StageActivated)
			}
		case ActionActivateSyncTree:
			s.client.ScheduledActionActivateSyncTree()
			s.advance(StageActivated)
		case ActionDrawAndSwap:
			result := s.client.ScheduledActionDrawAndSwap()
			s.sm.DidDraw(result)
			s.advance(StageDrawn)
			if result == DrawSuccess {
				s.advance(StageSwapComplete)
			} else {
				s.advance(StageSwapFailed)
			}
		case ActionBeginOutputSurfaceCreation:
			s.client.ScheduledActionBeginOutputSurfaceCreation()
		case ActionPrepareTiles:
			s.client.ScheduledActionPrepareTiles()
		}
		if s.stopped {
			return
		}
	}
	if s.sm.ShouldTriggerDeadlineEarly() && s.earlyPosted != s.args.SequenceNumber {
		s.earlyPosted = s.args.SequenceNumber
		s.postDeadline(0)
	}
	s.updateObserving()
}

func (s *Scheduler) advance(stage FrameStage) {
	if err := s.ordering.Advance(stage); err != nil {
		cc.Logger().Warn("scheduler: pipeline order violated", "err", err)
	}
}

func (s *Scheduler) updateObserving() {
	needed := s.sm.BeginFrameNeeded() && !s.stopped
	if needed == s.observing || s.source == nil {
		return
	}
	s.observing = needed
	if needed {
		s.source.AddObserver(s)
	} else {
		s.source.RemoveObserver(s)
	}
}

// SetVisible shows or hides the compositor.
func (s *Scheduler) SetVisible(visible bool) {
	s.sm.SetVisible(visible)
	s.processScheduledActions()
}

// SetNeedsBeginMainFrame requests a main frame.
func (s *Scheduler) SetNeedsBeginMainFrame() {
	s.sm.SetNeedsBeginMainFrame()
	s.processScheduledActions()
}

// SetNeedsRedraw requests a draw.
func (s *Scheduler) SetNeedsRedraw() {
	s.sm.SetNeedsRedraw()
	s.processScheduledActions()
}

// SetNeedsPrepareTiles requests tile preparation.
func (s *Scheduler) SetNeedsPrepareTiles() {
	s.sm.SetNeedsPrepareTiles()
	s.processScheduledActions()
}

// SetMaxPendingSwaps changes the swap limit.
func (s *Scheduler) SetMaxPendingSwaps(n int) {
	s.sm.SetMaxPendingSwaps(n)
	s.processScheduledActions()
}

// NotifyBeginMainFrameStarted is called when the main goroutine starts
// the main frame.
func (s *Scheduler) NotifyBeginMainFrameStarted() {
	s.sm.NotifyBeginMainFrameStarted()
}

// NotifyReadyToCommit is called when the main goroutine waits for the
// commit.
func (s *Scheduler) NotifyReadyToCommit() {
	s.sm.NotifyReadyToCommit()
	s.processScheduledActions()
}

// BeginMainFrameAborted is called when the main frame ended without a
// commit.
func (s *Scheduler) BeginMainFrameAborted(reason cc.CommitEarlyOutReason) {
	cc.Logger().Debug("scheduler: main frame aborted", "reason", reason)
	s.sm.BeginMainFrameAborted(reason)
	s.advance(StageBeginMainFrameAborted)
	s.processScheduledActions()
}

// NotifyReadyToActivate is called when the pending tree may activate.
func (s *Scheduler) NotifyReadyToActivate() {
	s.sm.NotifyReadyToActivate()
	s.processScheduledActions()
}

// DidSwapBuffersComplete is called when the output surface acknowledged a
// swap.
func (s *Scheduler) DidSwapBuffersComplete() {
	s.sm.DidSwapBuffersComplete()
	s.processScheduledActions()
}

// DidLoseOutputSurface is called when the output surface was lost.
func (s *Scheduler) DidLoseOutputSurface() {
	s.sm.DidLoseOutputSurface()
	s.processScheduledActions()
}

// DidCreateAndInitializeOutputSurface is called once a new output surface
// is bound.
func (s *Scheduler) DidCreateAndInitializeOutputSurface() {
	s.sm.DidCreateAndInitializeOutputSurface()
	s.processScheduledActions()
}

// DidFailToCreateOutputSurface is called when creating the output
// surface failed.
func (s *Scheduler) DidFailToCreateOutputSurface() {
	s.sm.DidFailToCreateOutputSurface()
	s.processScheduledActions()
}

// Stop stops observing BeginFrames. Later calls do nothing.
func (s *Scheduler) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	if s.observing && s.source != nil {
		s.source.RemoveObserver(s)
	}
	s.observing = false
}
