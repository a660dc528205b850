package checker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNextTransitions(t *testing.T) {
	allEnabled := Policy{HeadlessEnabled: true, ManualVerificationAllowed: true}
	plainOnly := Policy{}
	noManual := Policy{HeadlessEnabled: true}

	tests := []struct {
		name        string
		state       State
		challenged  bool
		fetchFailed bool
		policy      Policy
		expected    State
	}{
		{"plain clear", StatePlainFetch, false, false, allEnabled, StateSuccess},
		{"plain challenged escalates", StatePlainFetch, true, false, allEnabled, StateHeadlessFetch},
		{"plain challenged headless disabled", StatePlainFetch, true, false, plainOnly, StateFailure},
		{"plain fetch error", StatePlainFetch, false, true, allEnabled, StateFailure},
		{"headless clear", StateHeadlessFetch, false, false, allEnabled, StateSuccess},
		{"headless challenged escalates", StateHeadlessFetch, true, false, allEnabled, StateManualVerification},
		{"headless challenged no manual", StateHeadlessFetch, true, false, noManual, StateFailure},
		{"headless browser error", StateHeadlessFetch, false, true, allEnabled, StateFailure},
		{"manual clear", StateManualVerification, false, false, allEnabled, StateSuccess},
		{"manual still challenged", StateManualVerification, true, false, allEnabled, StateFailure},
		{"terminal success stays", StateSuccess, true, true, allEnabled, StateSuccess},
		{"terminal failure stays", StateFailure, false, false, allEnabled, StateFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Next(tt.state, tt.challenged, tt.fetchFailed, tt.policy))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "plain_fetch", StatePlainFetch.String())
	assert.Equal(t, "manual_verification", StateManualVerification.String())
	assert.True(t, StateSuccess.Terminal())
	assert.True(t, StateFailure.Terminal())
	assert.False(t, StateHeadlessFetch.Terminal())
}
