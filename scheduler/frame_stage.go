package scheduler

import (
	"errors"
	"fmt"
)

// ErrOutOfOrder is returned by OrderingTracker for a transition no frame
// in flight can make.
var ErrOutOfOrder = errors.New("scheduler: frame stage out of order")

// FrameStage is the progress of one main frame through the pipeline.
type FrameStage int

// Frame stages in pipeline order. A frame ends in BeginMainFrameAborted,
// SwapComplete or SwapFailed.
const (
	StageIdle FrameStage = iota
	StageBeginMainFrameSent
	StageBeginMainFrameAborted
	StageCommitStarted
	StageCommitComplete
	StagePendingTree
	StageActivated
	StageDrawn
	StageSwapComplete
	StageSwapFailed
)

var stageNames = [...]string{
	StageIdle:                  "IDLE",
	StageBeginMainFrameSent:    "BEGIN_MAIN_FRAME_SENT",
	StageBeginMainFrameAborted: "BEGIN_MAIN_FRAME_ABORTED",
	StageCommitStarted:         "COMMIT_STARTED",
	StageCommitComplete:        "COMMIT_COMPLETE",
	StagePendingTree:           "PENDING_TREE",
	StageActivated:             "ACTIVATED",
	StageDrawn:                 "DRAWN",
	StageSwapComplete:          "SWAP_COMPLETE",
	StageSwapFailed:            "SWAP_FAILED",
}

// String returns the stage name.
func (s FrameStage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("FrameStage(%d)", int(s))
}

// Terminal reports whether the stage ends a frame.
func (s FrameStage) Terminal() bool {
	switch s {
	case StageBeginMainFrameAborted, StageSwapComplete, StageSwapFailed:
		return true
	}
	return false
}

var transitions = map[FrameStage][]FrameStage{
	StageIdle:               {StageBeginMainFrameSent},
	StageBeginMainFrameSent: {StageBeginMainFrameAborted, StageCommitStarted},
	StageCommitStarted:      {StageCommitComplete},
	StageCommitComplete:     {StagePendingTree, StageActivated},
	StagePendingTree:        {StageActivated},
	StageActivated:          {StageDrawn, StageSwapFailed},
	StageDrawn:              {StageSwapComplete, StageSwapFailed},
}

func canTransition(from, to FrameStage) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition is one recorded stage change.
type Transition struct {
	// BeginFrame is the sequence number of the BeginFrame that sent the
	// main frame.
	BeginFrame uint64
	From, To   FrameStage
}

type trackedFrame struct {
	beginFrame uint64
	stage      FrameStage
}

// maxHistory bounds the recorded transitions.
const maxHistory = 1024

// OrderingTracker follows every main frame in flight through its stages
// and rejects transitions that break the pipeline order: a main frame
// belongs to a BeginFrame, a commit to a main frame, an activation to a
// commit, and a swap to an activated tree.
type OrderingTracker struct {
	lastBeginFrame uint64
	sentFor        uint64
	frames         []*trackedFrame
	history        []Transition
	completed      int
	err            error
}

// NewOrderingTracker returns an empty tracker.
func NewOrderingTracker() *OrderingTracker {
	return &OrderingTracker{}
}

// OnBeginFrame records the BeginFrame main frames are sent for.
func (t *OrderingTracker) OnBeginFrame(seq uint64) {
	t.lastBeginFrame = seq
}

// Advance moves the oldest frame that can make the transition to stage
// to. Sending a main frame starts a new frame; at most one may be sent per
// BeginFrame and only one may be before its commit.
//
// A draw or swap with no activated frame is a redraw and is accepted.
func (t *OrderingTracker) Advance(to FrameStage) error {
	if to == StageBeginMainFrameSent {
		return t.begin()
	}
	if to == StageActivated {
		// A frame activated but never drawn is overtaken.
		for _, f := range t.frames {
			if f.stage == StageActivated {
				t.set(f, StageSwapFailed)
			}
		}
		t.compact()
	}
	for _, f := range t.frames {
		if canTransition(f.stage, to) {
			t.set(f, to)
			t.compact()
			return nil
		}
	}
	switch to {
	case StageDrawn, StageSwapComplete, StageSwapFailed:
		return nil
	}
	return t.fail(fmt.Errorf("%w: nothing can move to %v (in flight: %v)", ErrOutOfOrder, to, t.Stages()))
}

func (t *OrderingTracker) begin() error {
	switch {
	case t.lastBeginFrame == 0:
		return t.fail(fmt.Errorf("%w: main frame sent before any BeginFrame", ErrOutOfOrder))
	case t.sentFor == t.lastBeginFrame:
		return t.fail(fmt.Errorf("%w: second main frame for BeginFrame %d", ErrOutOfOrder, t.lastBeginFrame))
	}
	for _, f := range t.frames {
		if f.stage == StageBeginMainFrameSent || f.stage == StageCommitStarted {
			return t.fail(fmt.Errorf("%w: main frame sent while %v", ErrOutOfOrder, f.stage))
		}
	}
	t.sentFor = t.lastBeginFrame
	f := &trackedFrame{beginFrame: t.lastBeginFrame, stage: StageIdle}
	t.frames = append(t.frames, f)
	t.set(f, StageBeginMainFrameSent)
	return nil
}

func (t *OrderingTracker) set(f *trackedFrame, to FrameStage) {
	if len(t.history) == maxHistory {
		copy(t.history, t.history[1:])
		t.history = t.history[:maxHistory-1]
	}
	t.history = append(t.history, Transition{BeginFrame: f.beginFrame, From: f.stage, To: to})
	f.stage = to
}

func (t *OrderingTracker) compact() {
	live := t.frames[:0]
	for _, f := range t.frames {
		if f.stage.Terminal() {
			t.completed++
			continue
		}
		live = append(live, f)
	}
	clear(t.frames[len(live):])
	t.frames = live
}

func (t *OrderingTracker) fail(err error) error {
	if t.err == nil {
		t.err = err
	}
	return err
}

// Err returns the first ordering violation, or nil.
func (t *OrderingTracker) Err() error { return t.err }

// Stages returns the stages of the frames in flight, oldest first.
func (t *OrderingTracker) Stages() []FrameStage {
	out := make([]FrameStage, len(t.frames))
	for i, f := range t.frames {
		out[i] = f.stage
	}
	return out
}

// History returns the recorded transitions, oldest first.
func (t *OrderingTracker) History() []Transition {
	return append([]Transition(nil), t.history...)
}

// Completed returns the number of frames that reached a terminal stage.
func (t *OrderingTracker) Completed() int { return t.completed }
