// Package timing decides how a dependent media duration is brought in line
// with a reference duration. It is pure policy: callers perform the actual
// padding or trimming.
package timing

import "fmt"

// DefaultMaxRatio rejects dependent content longer than 1.5x the reference.
// The ceiling keeps inference run time bounded.
const DefaultMaxRatio = 1.5

// Action is the kind of adjustment a Decision calls for.
type Action int

const (
	UseAsIs Action = iota
	Pad
	Trim
	Reject
)

func (a Action) String() string {
	switch a {
	case UseAsIs:
		return "use-as-is"
	case Pad:
		return "pad"
	case Trim:
		return "trim"
	case Reject:
		return "reject"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Policy selects how a too-short dependent is resolved. When the reference is
// video and the dependent audio, the audio is padded up to the reference;
// when the reference is audio, the video is trimmed down to it instead.
type Policy int

const (
	PadDependent Policy = iota
	TrimDependent
)

// Decision is the outcome of one reconciliation. Target is the duration in
// seconds both tracks end up aligned at: the reference for Pad, the
// dependent for Trim. Reason is set only for Reject.
type Decision struct {
	Action Action
	Target float64
	Reason string
}

// Reconcile compares a dependent duration against a reference duration.
//
// A non-positive duration on either side means the measurement was
// unavailable, and the pipeline must not fail on a metadata gap, so the
// tracks are used as-is. A dependent longer than ref*maxRatio is rejected.
// A dependent shorter than the reference is padded up to the reference, or
// the reference is trimmed down to the dependent, per policy. Identical
// inputs always yield identical decisions.
func Reconcile(ref, dep, maxRatio float64, policy Policy) Decision {
	if maxRatio <= 0 {
		maxRatio = DefaultMaxRatio
	}
	if ref <= 0 || dep <= 0 {
		return Decision{Action: UseAsIs}
	}
	if dep > ref*maxRatio {
		return Decision{
			Action: Reject,
			Reason: fmt.Sprintf("dependent content is %.1fs but reference is only %.1fs", dep, ref),
		}
	}
	if dep < ref {
		if policy == TrimDependent {
			return Decision{Action: Trim, Target: dep}
		}
		return Decision{Action: Pad, Target: ref}
	}
	return Decision{Action: UseAsIs}
}
