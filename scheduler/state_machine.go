// Package scheduler decides when the compositor begins main frames,
// commits, activates and draws.
//
// A StateMachine holds the pipeline state and answers NextAction. A
// Scheduler feeds it BeginFrames from a BeginFrameSource and events from
// the proxy, and performs the actions it picks through a Client. Every
// method of both runs on the impl goroutine.
package scheduler

import (
	"fmt"

	"github.com/gogpu/cc"
)

// Action is the next step of the pipeline.
type Action int

// Actions in no particular order; see StateMachine.NextAction for their
// priority.
const (
	ActionNone Action = iota
	ActionSendBeginMainFrame
	ActionCommit
	ActionActivateSyncTree
	ActionDrawAndSwap
	ActionBeginOutputSurfaceCreation
	ActionPrepareTiles
)

var actionNames = [...]string{
	ActionNone:                       "none",
	ActionSendBeginMainFrame:         "send_begin_main_frame",
	ActionCommit:                     "commit",
	ActionActivateSyncTree:           "activate_sync_tree",
	ActionDrawAndSwap:                "draw_and_swap",
	ActionBeginOutputSurfaceCreation: "begin_output_surface_creation",
	ActionPrepareTiles:               "prepare_tiles",
}

// String returns the action name.
func (a Action) String() string {
	if a >= 0 && int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// MainFrameState tracks the main frame in flight.
type MainFrameState int

// Main frame states.
const (
	MainFrameIdle MainFrameState = iota
	MainFrameSent
	MainFrameStarted
	MainFrameReadyToCommit
)

// String returns the state name.
func (s MainFrameState) String() string {
	switch s {
	case MainFrameIdle:
		return "IDLE"
	case MainFrameSent:
		return "SENT"
	case MainFrameStarted:
		return "STARTED"
	case MainFrameReadyToCommit:
		return "READY_TO_COMMIT"
	default:
		return fmt.Sprintf("MainFrameState(%d)", int(s))
	}
}

// ImplFrameState tracks the BeginFrame being handled.
type ImplFrameState int

// Impl frame states.
const (
	ImplFrameIdle ImplFrameState = iota
	ImplFrameInsideBeginFrame
	ImplFrameInsideDeadline
)

// String returns the state name.
func (s ImplFrameState) String() string {
	switch s {
	case ImplFrameIdle:
		return "IDLE"
	case ImplFrameInsideBeginFrame:
		return "INSIDE_BEGIN_FRAME"
	case ImplFrameInsideDeadline:
		return "INSIDE_DEADLINE"
	default:
		return fmt.Sprintf("ImplFrameState(%d)", int(s))
	}
}

// OutputSurfaceState tracks the output surface lifecycle.
type OutputSurfaceState int

// Output surface states. A new surface may only be drawn to once a tree
// committed after its creation is active.
const (
	OutputSurfaceNone OutputSurfaceState = iota
	OutputSurfaceCreating
	OutputSurfaceWaitingForFirstCommit
	OutputSurfaceWaitingForFirstActivation
	OutputSurfaceActive
)

// String returns the state name.
func (s OutputSurfaceState) String() string {
	switch s {
	case OutputSurfaceNone:
		return "NONE"
	case OutputSurfaceCreating:
		return "CREATING"
	case OutputSurfaceWaitingForFirstCommit:
		return "WAITING_FOR_FIRST_COMMIT"
	case OutputSurfaceWaitingForFirstActivation:
		return "WAITING_FOR_FIRST_ACTIVATION"
	case OutputSurfaceActive:
		return "ACTIVE"
	default:
		return fmt.Sprintf("OutputSurfaceState(%d)", int(s))
	}
}

// DrawResult is the outcome of a DrawAndSwap action.
type DrawResult int

// Draw results.
const (
	DrawSuccess DrawResult = iota
	DrawAbortedNoDamage
	DrawAbortedCantDraw
	DrawAbortedContextLost
)

// String returns the result name.
func (r DrawResult) String() string {
	switch r {
	case DrawSuccess:
		return "success"
	case DrawAbortedNoDamage:
		return "aborted_no_damage"
	case DrawAbortedCantDraw:
		return "aborted_cant_draw"
	case DrawAbortedContextLost:
		return "aborted_context_lost"
	default:
		return fmt.Sprintf("DrawResult(%d)", int(r))
	}
}

// maxOutputSurfaceRetries bounds consecutive failed surface creations.
const maxOutputSurfaceRetries = 3

// Settings configure a StateMachine.
type Settings struct {
	// CommitToActiveTree is set for single-threaded compositors: commits
	// replace the active tree and there is no activation step.
	CommitToActiveTree bool

	// MaxPendingSwaps bounds unacknowledged swaps.
	MaxPendingSwaps int
}

// SettingsFrom derives scheduler settings from tree settings.
func SettingsFrom(s cc.LayerTreeSettings) Settings {
	return Settings{
		CommitToActiveTree: !s.Threaded,
		MaxPendingSwaps:    s.MaxPendingSwaps,
	}
}

// StateMachine is the pipeline state of a compositor. It is not safe for
// concurrent use.
type StateMachine struct {
	settings Settings

	mainFrame     MainFrameState
	implFrame     ImplFrameState
	outputSurface OutputSurfaceState

	visible             bool
	needsBeginMainFrame bool
	needsRedraw         bool
	needsPrepareTiles   bool
	hasPendingTree      bool
	pendingTreeReady    bool

	sentBeginMainFrameThisFrame bool
	drewThisFrame               bool
	preparedTilesThisFrame      bool

	pendingSwaps    int
	maxPendingSwaps int
	failedCreations int
	commitCount     int
	abortCount      int
	activationCount int
}

// NewStateMachine returns a machine without an output surface.
func NewStateMachine(settings Settings) *StateMachine {
	if settings.MaxPendingSwaps <= 0 {
		settings.MaxPendingSwaps = cc.DefaultMaxPendingSwaps
	}
	return &StateMachine{settings: settings, maxPendingSwaps: settings.MaxPendingSwaps}
}

// NextAction returns the action to perform now. Output surface creation
// comes first, then activation, commit, draw, tile preparation and
// finally a new main frame, so that in-flight work drains before new
// work starts.
func (s *StateMachine) NextAction() Action {
	switch {
	case s.shouldBeginOutputSurfaceCreation():
		return ActionBeginOutputSurfaceCreation
	case s.shouldActivate():
		return ActionActivateSyncTree
	case s.shouldCommit():
		return ActionCommit
	case s.shouldDraw():
		return ActionDrawAndSwap
	case s.shouldPrepareTiles():
		return ActionPrepareTiles
	case s.shouldSendBeginMainFrame():
		return ActionSendBeginMainFrame
	}
	return ActionNone
}

func (s *StateMachine) shouldBeginOutputSurfaceCreation() bool {
	return s.visible && s.outputSurface == OutputSurfaceNone && s.mainFrame == MainFrameIdle &&
		!s.hasPendingTree && s.failedCreations < maxOutputSurfaceRetries
}

func (s *StateMachine) shouldActivate() bool {
	return s.hasPendingTree && s.pendingTreeReady
}

func (s *StateMachine) shouldCommit() bool {
	return s.mainFrame == MainFrameReadyToCommit && !s.hasPendingTree
}

func (s *StateMachine) shouldDraw() bool {
	return s.implFrame == ImplFrameInsideDeadline && !s.drewThisFrame && s.needsRedraw && s.visible &&
		s.outputSurface == OutputSurfaceActive && s.pendingSwaps < s.maxPendingSwaps
}

func (s *StateMachine) shouldPrepareTiles() bool {
	return s.needsPrepareTiles && s.implFrame == ImplFrameInsideDeadline && !s.preparedTilesThisFrame
}

func (s *StateMachine) shouldSendBeginMainFrame() bool {
	if !s.needsBeginMainFrame || s.mainFrame != MainFrameIdle || !s.visible {
		return false
	}
	if s.implFrame == ImplFrameIdle || s.sentBeginMainFrameThisFrame {
		return false
	}
	switch s.outputSurface {
	case OutputSurfaceNone, OutputSurfaceCreating:
		return false
	}
	// The next commit could not start before the pending tree activates.
	return !s.hasPendingTree
}

// WillPerform updates the state for action, which the caller is about to
// perform.
func (s *StateMachine) WillPerform(action Action) {
	switch action {
	case ActionSendBeginMainFrame:
		s.mainFrame = MainFrameSent
		s.needsBeginMainFrame = false
		s.sentBeginMainFrameThisFrame = true
	case ActionCommit:
		s.mainFrame = MainFrameIdle
		s.commitCount++
		if s.settings.CommitToActiveTree {
			s.needsRedraw = true
			if s.outputSurface == OutputSurfaceWaitingForFirstCommit {
				s.outputSurface = OutputSurfaceActive
			}
			break
		}
		s.hasPendingTree = true
		s.pendingTreeReady = false
		if s.outputSurface == OutputSurfaceWaitingForFirstCommit {
			s.outputSurface = OutputSurfaceWaitingForFirstActivation
		}
	case ActionActivateSyncTree:
		s.hasPendingTree = false
		s.pendingTreeReady = false
		s.needsRedraw = true
		s.activationCount++
		if s.outputSurface == OutputSurfaceWaitingForFirstActivation {
			s.outputSurface = OutputSurfaceActive
		}
	case ActionDrawAndSwap:
		s.drewThisFrame = true
	case ActionBeginOutputSurfaceCreation:
		s.outputSurface = OutputSurfaceCreating
	case ActionPrepareTiles:
		s.needsPrepareTiles = false
		s.preparedTilesThisFrame = true
	}
}

// DidDraw records the result of a DrawAndSwap action.
func (s *StateMachine) DidDraw(result DrawResult) {
	switch result {
	case DrawSuccess:
		s.needsRedraw = false
		s.pendingSwaps++
	case DrawAbortedNoDamage, DrawAbortedCantDraw:
		s.needsRedraw = false
	case DrawAbortedContextLost:
		// The loss notification resets the output surface state.
	}
}

// OnBeginImplFrame starts a new BeginFrame.
func (s *StateMachine) OnBeginImplFrame() {
	s.implFrame = ImplFrameInsideBeginFrame
	s.sentBeginMainFrameThisFrame = false
	s.drewThisFrame = false
	s.preparedTilesThisFrame = false
}

// OnBeginImplFrameDeadline enters the draw phase of the frame.
func (s *StateMachine) OnBeginImplFrameDeadline() {
	s.implFrame = ImplFrameInsideDeadline
}

// OnBeginImplFrameIdle ends the frame.
func (s *StateMachine) OnBeginImplFrameIdle() {
	s.implFrame = ImplFrameIdle
}

// ShouldTriggerDeadlineEarly reports whether the frame has nothing left
// to wait for before drawing.
func (s *StateMachine) ShouldTriggerDeadlineEarly() bool {
	return s.implFrame == ImplFrameInsideBeginFrame && s.mainFrame == MainFrameIdle && !s.hasPendingTree
}

// SetVisible sets visibility. Nothing is drawn or begun while hidden.
func (s *StateMachine) SetVisible(visible bool) {
	s.visible = visible
	if visible {
		s.failedCreations = 0
	}
}

// SetNeedsBeginMainFrame requests one main frame. Repeated requests before
// the frame is sent coalesce.
func (s *StateMachine) SetNeedsBeginMainFrame() { s.needsBeginMainFrame = true }

// SetNeedsRedraw requests a draw.
func (s *StateMachine) SetNeedsRedraw() { s.needsRedraw = true }

// SetNeedsPrepareTiles requests tile preparation in the next deadline.
func (s *StateMachine) SetNeedsPrepareTiles() { s.needsPrepareTiles = true }

// SetMaxPendingSwaps changes the swap limit, for example from the
// capabilities of a new output surface.
func (s *StateMachine) SetMaxPendingSwaps(n int) {
	if n > 0 {
		s.maxPendingSwaps = n
	}
}

// NotifyBeginMainFrameStarted records that the main goroutine picked up
// the main frame.
func (s *StateMachine) NotifyBeginMainFrameStarted() {
	if s.mainFrame == MainFrameSent {
		s.mainFrame = MainFrameStarted
	}
}

// NotifyReadyToCommit records that the main goroutine waits for the
// commit.
func (s *StateMachine) NotifyReadyToCommit() {
	if s.mainFrame == MainFrameSent || s.mainFrame == MainFrameStarted {
		s.mainFrame = MainFrameReadyToCommit
	}
}

// BeginMainFrameAborted ends the main frame without a commit. A failed
// commit keeps the request so the next frame commits again; a frame
// without updates satisfies it.
func (s *StateMachine) BeginMainFrameAborted(reason cc.CommitEarlyOutReason) {
	s.mainFrame = MainFrameIdle
	s.abortCount++
	if reason.Aborted() {
		s.needsBeginMainFrame = true
	}
}

// NotifyReadyToActivate records that the pending tree may activate.
func (s *StateMachine) NotifyReadyToActivate() {
	if s.hasPendingTree {
		s.pendingTreeReady = true
	}
}

// DidSwapBuffersComplete records a swap acknowledgement.
func (s *StateMachine) DidSwapBuffersComplete() {
	if s.pendingSwaps > 0 {
		s.pendingSwaps--
	}
}

// DidLoseOutputSurface forgets the output surface. Unacknowledged swaps
// will never be acknowledged.
func (s *StateMachine) DidLoseOutputSurface() {
	if s.outputSurface == OutputSurfaceNone || s.outputSurface == OutputSurfaceCreating {
		return
	}
	s.outputSurface = OutputSurfaceNone
	s.pendingSwaps = 0
	s.needsRedraw = true
}

// DidCreateAndInitializeOutputSurface records a new output surface. It
// can be drawn to after the next commit.
func (s *StateMachine) DidCreateAndInitializeOutputSurface() {
	s.outputSurface = OutputSurfaceWaitingForFirstCommit
	s.failedCreations = 0
	s.needsBeginMainFrame = true
	s.needsRedraw = true
}

// DidFailToCreateOutputSurface returns to the no-surface state. Creation
// is retried a bounded number of times until visibility changes.
func (s *StateMachine) DidFailToCreateOutputSurface() {
	s.outputSurface = OutputSurfaceNone
	s.failedCreations++
}

// BeginFrameNeeded reports whether BeginFrames should be observed.
func (s *StateMachine) BeginFrameNeeded() bool {
	if !s.visible {
		return false
	}
	switch s.outputSurface {
	case OutputSurfaceNone, OutputSurfaceCreating:
		return false
	}
	return s.needsRedraw || s.needsBeginMainFrame || s.needsPrepareTiles
}

// MainFrameState returns the state of the main frame in flight.
func (s *StateMachine) MainFrameState() MainFrameState { return s.mainFrame }

// ImplFrameState returns the state of the current BeginFrame.
func (s *StateMachine) ImplFrameState() ImplFrameState { return s.implFrame }

// OutputSurfaceState returns the output surface state.
func (s *StateMachine) OutputSurfaceState() OutputSurfaceState { return s.outputSurface }

// HasPendingTree reports whether a committed tree waits for activation.
func (s *StateMachine) HasPendingTree() bool { return s.hasPendingTree }

// NeedsRedraw reports whether a draw is requested.
func (s *StateMachine) NeedsRedraw() bool { return s.needsRedraw }

// NeedsBeginMainFrame reports whether a main frame is requested.
func (s *StateMachine) NeedsBeginMainFrame() bool { return s.needsBeginMainFrame }

// PendingSwaps returns the number of unacknowledged swaps.
func (s *StateMachine) PendingSwaps() int { return s.pendingSwaps }

// CommitCount returns the number of commits.
func (s *StateMachine) CommitCount() int { return s.commitCount }

// AbortCount returns the number of aborted main frames.
func (s *StateMachine) AbortCount() int { return s.abortCount }

// ActivationCount returns the number of activations.
func (s *StateMachine) ActivationCount() int { return s.activationCount }

// String summarizes the state for logs.
func (s *StateMachine) String() string {
	return fmt.Sprintf("main=%v impl=%v surface=%v visible=%t needs_bmf=%t needs_redraw=%t pending_tree=%t ready=%t swaps=%d",
		s.mainFrame, s.implFrame, s.outputSurface, s.visible, s.needsBeginMainFrame, s.needsRedraw,
		s.hasPendingTree, s.pendingTreeReady, s.pendingSwaps)
}
