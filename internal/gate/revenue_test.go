package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/crestway-partners/leadscout/internal/model"
)

func TestRevenueLowConfidenceFailsDespiteStaff(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	staff := 50
	b := testBusiness()
	b.EmployeeCount = &staff

	observations := []model.Observation{
		obs("obs-1", model.FieldRevenueEstimate, "2500000", 0.59),
	}

	res := Revenue{}.Evaluate(b, observations, rs)

	assert.False(t, res.Passed)
	assert.Equal(t, ActionExclude, res.Action)
	assert.Contains(t, res.Reason, "confidence 0.59")
	assert.Contains(t, res.Reason, "below threshold 0.60")
}

func TestRevenueConfidenceWithoutSignalFails(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	b := testBusiness()
	b.EmployeeCount = nil

	observations := []model.Observation{
		obs("obs-1", model.FieldRevenueEstimate, "2500000", 0.9),
		obs("obs-2", model.FieldRevenueBenchmark, "false", 0.9),
	}

	res := Revenue{}.Evaluate(b, observations, rs)

	assert.False(t, res.Passed)
	assert.Equal(t, ActionExclude, res.Action)
	assert.Contains(t, res.Reason, "confidence without supporting evidence")
}

func TestRevenueZeroStaffIsAValidSignal(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	zero := 0
	b := testBusiness()
	b.EmployeeCount = &zero

	observations := []model.Observation{
		obs("obs-1", model.FieldRevenueEstimate, "400000", 0.6),
	}

	res := Revenue{}.Evaluate(b, observations, rs)

	assert.True(t, res.Passed)
	assert.Equal(t, ActionNone, res.Action)
	assert.Contains(t, res.Reason, "staff count 0")
}

func TestRevenueBenchmarkMatchAlone(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	b := testBusiness()
	b.EmployeeCount = nil

	observations := []model.Observation{
		obs("obs-1", model.FieldRevenueEstimate, "900000", 0.75),
		obs("obs-2", model.FieldRevenueBenchmark, "yes", 0.8),
	}

	res := Revenue{}.Evaluate(b, observations, rs)

	assert.True(t, res.Passed)
	assert.Contains(t, res.Reason, "benchmark match")
}

func TestRevenueNoEstimateAtAll(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	res := Revenue{}.Evaluate(testBusiness(), nil, rs)

	assert.False(t, res.Passed)
	assert.Equal(t, ActionExclude, res.Action)
	assert.Contains(t, res.Reason, "confidence 0.00")
}

func TestRevenueHighestConfidenceEstimateWins(t *testing.T) {
	t.Parallel()
	rs := testRules(t)

	observations := []model.Observation{
		obs("obs-1", model.FieldRevenueEstimate, "500000", 0.3),
		obs("obs-2", model.FieldRevenueEstimate, "800000", 0.7),
	}

	res := Revenue{}.Evaluate(testBusiness(), observations, rs)
	assert.True(t, res.Passed)
}
