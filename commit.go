package cc

// CommitEarlyOutReason tells why a main frame ended without a commit.
type CommitEarlyOutReason uint8

// Early out reasons.
const (
	// CommitAbortedNotVisible: the host was hidden.
	CommitAbortedNotVisible CommitEarlyOutReason = iota + 1

	// CommitAbortedOutputSurfaceLost: the output surface was lost.
	CommitAbortedOutputSurfaceLost

	// CommitAbortedDeferredCommit: commits are deferred.
	CommitAbortedDeferredCommit

	// CommitFinishedNoUpdates: the main frame ran but nothing changed.
	CommitFinishedNoUpdates
)

// String returns the reason name.
func (r CommitEarlyOutReason) String() string {
	switch r {
	case CommitAbortedNotVisible:
		return "aborted_not_visible"
	case CommitAbortedOutputSurfaceLost:
		return "aborted_output_surface_lost"
	case CommitAbortedDeferredCommit:
		return "aborted_deferred_commit"
	case CommitFinishedNoUpdates:
		return "finished_no_updates"
	default:
		return "unknown"
	}
}

// Aborted reports whether the main frame was cut short, as opposed to
// running to completion with nothing to commit.
func (r CommitEarlyOutReason) Aborted() bool {
	return r != CommitFinishedNoUpdates
}
