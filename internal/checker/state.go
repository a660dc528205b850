package checker

import "time"

// State is one step of the fetch/fallback escalation. A check starts at
// StatePlainFetch and either terminates on clear content or escalates one
// tier at a time as far as policy allows.
type State int

const (
	StatePlainFetch State = iota
	StateHeadlessFetch
	StateManualVerification
	StateSuccess
	StateFailure
)

func (s State) String() string {
	switch s {
	case StatePlainFetch:
		return "plain_fetch"
	case StateHeadlessFetch:
		return "headless_fetch"
	case StateManualVerification:
		return "manual_verification"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "invalid"
	}
}

// Terminal reports whether the state ends the check.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Policy is the per-run snapshot of escalation settings. It is taken once at
// the start of a bulk run and threaded through every item.
type Policy struct {
	HeadlessEnabled           bool
	ManualVerificationAllowed bool
	SessionTTL                time.Duration
	FetchTimeout              time.Duration
}

// Next is the pure transition function of the state machine. challenged is
// the classifier's verdict on the tier's response; fetchFailed covers network
// or browser-process errors, which terminate the tier without escalation.
func Next(s State, challenged, fetchFailed bool, p Policy) State {
	if s.Terminal() {
		return s
	}

	if fetchFailed {
		return StateFailure
	}

	if !challenged {
		return StateSuccess
	}

	switch s {
	case StatePlainFetch:
		if p.HeadlessEnabled {
			return StateHeadlessFetch
		}
		return StateFailure
	case StateHeadlessFetch:
		if p.ManualVerificationAllowed {
			return StateManualVerification
		}
		return StateFailure
	case StateManualVerification:
		return StateFailure
	default:
		return StateFailure
	}
}
