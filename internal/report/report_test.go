package report

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/model"
)

func newTestStore(t *testing.T) *evidence.SQLiteStore {
	t.Helper()
	store, err := evidence.NewSQLite(filepath.Join(t.TempDir(), "leadscout.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func seedBusiness(t *testing.T, store *evidence.SQLiteStore, name string, status model.Status) *model.Business {
	t.Helper()
	ctx := context.Background()

	b, err := store.CreateBusiness(ctx, &model.Business{
		Fingerprint:    hex.EncodeToString([]byte(name + "........"))[:16],
		OriginalName:   name,
		NormalizedName: name,
		City:           "Hamilton",
	})
	require.NoError(t, err)
	if status != model.StatusDiscovered {
		require.NoError(t, store.UpdateStatus(ctx, b.ID, status))
		b.Status = status
	}
	return b
}

func TestFunnelCountsEveryStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedBusiness(t, store, "Alpha Print", model.StatusDiscovered)
	seedBusiness(t, store, "Beta Signs", model.StatusGeocoded)
	seedBusiness(t, store, "Gamma Graphics", model.StatusEnriched)
	seedBusiness(t, store, "Delta Press", model.StatusQualified)
	seedBusiness(t, store, "Epsilon Print", model.StatusQualified)
	seedBusiness(t, store, "Zeta Casino", model.StatusExcluded)
	seedBusiness(t, store, "Eta Monuments", model.StatusReviewRequired)

	snap, err := NewReporter(store).Funnel(ctx)
	require.NoError(t, err)

	assert.Equal(t, 7, snap.Total)
	assert.Equal(t, 1, snap.Discovered)
	assert.Equal(t, 1, snap.Geocoded)
	assert.Equal(t, 1, snap.Enriched)
	assert.Equal(t, 2, snap.Qualified)
	assert.Equal(t, 1, snap.Excluded)
	assert.Equal(t, 1, snap.Review)
	assert.InDelta(t, 0.5, snap.QualifiedRate, 1e-9)
	assert.False(t, snap.CollectedAt.IsZero())
	assert.Equal(t, time.UTC, snap.CollectedAt.Location())
}

func TestFunnelGateFailureBreakdown(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	excluded := seedBusiness(t, store, "Zeta Casino", model.StatusExcluded)
	review := seedBusiness(t, store, "Eta Monuments", model.StatusReviewRequired)

	_, err := store.PutValidation(ctx, model.Validation{
		BusinessID: excluded.ID, RuleID: "category", Passed: false,
		Reason: "matched blacklist category casino",
	})
	require.NoError(t, err)
	_, err = store.PutValidation(ctx, model.Validation{
		BusinessID: review.ID, RuleID: "category", Passed: true, Reason: "whitelisted",
	})
	require.NoError(t, err)
	_, err = store.PutValidation(ctx, model.Validation{
		BusinessID: review.ID, RuleID: "corroboration", Passed: false,
		Reason: "single source only",
	})
	require.NoError(t, err)

	snap, err := NewReporter(store).Funnel(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"category": 1, "corroboration": 1}, snap.GateFailures)
}

func TestFunnelEmptyStore(t *testing.T) {
	store := newTestStore(t)

	snap, err := NewReporter(store).Funnel(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Total)
	assert.Zero(t, snap.QualifiedRate)
	assert.Empty(t, snap.GateFailures)
}

func TestReviewQueueCarriesParkingVerdict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	parked := seedBusiness(t, store, "Eta Monuments", model.StatusReviewRequired)
	seedBusiness(t, store, "Delta Press", model.StatusQualified)

	_, err := store.PutValidation(ctx, model.Validation{
		BusinessID: parked.ID, RuleID: "category", Passed: true, Reason: "whitelisted",
	})
	require.NoError(t, err)
	_, err = store.PutValidation(ctx, model.Validation{
		BusinessID: parked.ID, RuleID: "corroboration", Passed: false,
		Reason: "single source only",
	})
	require.NoError(t, err)

	items, err := NewReporter(store).ReviewQueue(ctx, 0)
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, parked.ID, items[0].Business.ID)
	assert.Equal(t, "corroboration", items[0].RuleID)
	assert.Equal(t, "single source only", items[0].Reason)
}

func TestReviewQueueHonorsLimit(t *testing.T) {
	store := newTestStore(t)

	seedBusiness(t, store, "Eta Monuments", model.StatusReviewRequired)
	seedBusiness(t, store, "Theta Funeral Home", model.StatusReviewRequired)
	seedBusiness(t, store, "Iota Crematorium", model.StatusReviewRequired)

	items, err := NewReporter(store).ReviewQueue(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestAuditByIDAndFingerprint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := seedBusiness(t, store, "Delta Press", model.StatusQualified)

	_, err := store.PutObservation(ctx, model.Observation{
		BusinessID: b.ID, SourceURL: "https://directory-a.example.com",
		Field: model.FieldAddress, Value: "100 king street west", Confidence: 0.9,
	})
	require.NoError(t, err)
	_, err = store.PutValidation(ctx, model.Validation{
		BusinessID: b.ID, RuleID: "revenue", Passed: true, Reason: "estimate within benchmark",
	})
	require.NoError(t, err)

	reporter := NewReporter(store)

	byID, err := reporter.Audit(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, byID.Business.ID)
	assert.Len(t, byID.Observations, 1)
	assert.Len(t, byID.Validations, 1)
	assert.Empty(t, byID.Exclusions)

	byFP, err := reporter.Audit(ctx, b.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, b.ID, byFP.Business.ID)
}

func TestAuditIncludesExclusions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := seedBusiness(t, store, "Zeta Casino", model.StatusExcluded)
	_, err := store.PutExclusion(ctx, model.Exclusion{
		BusinessID: b.ID, RuleID: "category", Reason: "matched blacklist category casino",
	})
	require.NoError(t, err)

	trail, err := NewReporter(store).Audit(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, trail.Exclusions, 1)
	assert.Equal(t, "category", trail.Exclusions[0].RuleID)
}

func TestAuditUnknownIdentifier(t *testing.T) {
	store := newTestStore(t)

	_, err := NewReporter(store).Audit(context.Background(), "no-such-business")
	assert.Error(t, err)
}
