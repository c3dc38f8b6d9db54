package gate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebsiteAgeThresholds(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	tests := []struct {
		websiteOK  bool
		ageYears   float64
		wantAction Action
		wantPass   bool
	}{
		{websiteOK: false, ageYears: 10, wantAction: ActionExclude},
		{websiteOK: true, ageYears: 6.2, wantAction: ActionNone, wantPass: true},
		{websiteOK: true, ageYears: 3.0, wantAction: ActionNone, wantPass: true},
		{websiteOK: true, ageYears: 2.9, wantAction: ActionReview},
		{websiteOK: true, ageYears: 2.5, wantAction: ActionReview},
		{websiteOK: true, ageYears: 2.4, wantAction: ActionExclude},
		{websiteOK: true, ageYears: 0, wantAction: ActionExclude},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("ok=%v age=%.1f", tt.websiteOK, tt.ageYears), func(t *testing.T) {
			t.Parallel()
			b := testBusiness()
			b.WebsiteOK = tt.websiteOK
			b.WebsiteAgeYears = tt.ageYears

			res := WebsiteAge{}.Evaluate(b, nil, rs)

			assert.Equal(t, tt.wantPass, res.Passed)
			assert.Equal(t, tt.wantAction, res.Action)
		})
	}
}

func TestWebsiteAgeUnreachableReason(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	b := testBusiness()
	b.WebsiteOK = false

	res := WebsiteAge{}.Evaluate(b, nil, rs)
	assert.Contains(t, res.Reason, "unreachable")
}

func TestWebsiteAgeBorderlineReason(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	b := testBusiness()
	b.WebsiteAgeYears = 2.7

	res := WebsiteAge{}.Evaluate(b, nil, rs)
	assert.Equal(t, ActionReview, res.Action)
	assert.Contains(t, res.Reason, "borderline age")
}
