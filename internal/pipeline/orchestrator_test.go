package pipeline

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crestway-partners/leadscout/internal/evidence"
	"github.com/crestway-partners/leadscout/internal/gate"
	"github.com/crestway-partners/leadscout/internal/model"
	"github.com/crestway-partners/leadscout/internal/rules"
)

// newTestStore opens a migrated SQLite store on a temp file.
func newTestStore(t *testing.T) *evidence.SQLiteStore {
	t.Helper()
	store, err := evidence.NewSQLite(filepath.Join(t.TempDir(), "leadscout.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// hamiltonProvider compiles the service-area fixture shared by the pipeline
// tests: a 25 km radius around downtown Hamilton.
func hamiltonProvider(t *testing.T) *rules.Provider {
	t.Helper()

	var f rules.File
	f.Category.NameBlacklist = []string{`\bcasino\b`}
	f.Category.Blacklist = []string{"gas_station"}
	f.Category.ReviewRequired = []string{"funeral_home"}
	f.Category.Whitelist = []string{"printing_service", "sign_shop"}
	f.Geography.CenterLat = 43.2557
	f.Geography.CenterLon = -79.8711
	f.Geography.RadiusKm = 25
	f.Geography.AllowedCities = []string{"Hamilton", "Dundas", "Ancaster"}

	rs, err := rules.Compile(f)
	require.NoError(t, err)
	return rules.NewProvider(rs, "")
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *evidence.SQLiteStore) {
	t.Helper()
	store := newTestStore(t)
	return NewOrchestrator(store, hamiltonProvider(t), evidence.NewLocks(), 4), store
}

// printShopDraft is a Hamilton print shop as the first directory reports it.
func printShopDraft() model.Draft {
	staff := 12
	return model.Draft{
		Name:          "Bayfront Print Works Inc.",
		Street:        "100 King St W",
		City:          "Hamilton",
		PostalCode:    "L8P 1A1",
		Phone:         "(905) 555-1234",
		Website:       "https://www.bayfrontprintworks.ca/about",
		EmployeeCount: &staff,
		PlaceTypes:    []string{"printing_service"},
		SourceURL:     "https://directory-a.example.com/listing/8841",
	}
}

// enrichToPassing seeds the coordinates, derived signals, and corroborating
// second-source evidence that let the record pass every gate.
func enrichToPassing(t *testing.T, store evidence.Store, b *model.Business) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.SetCoordinates(ctx, b.ID, 43.2585, -79.8690))
	staff := 12
	require.NoError(t, store.UpdateEnrichment(ctx, b.ID, true, 6.2, &staff))

	_, err := store.PutObservations(ctx, []model.Observation{
		{BusinessID: b.ID, SourceURL: "https://directory-b.example.com/biz/77", Field: model.FieldAddress, Value: "100 King Street West", Confidence: 0.85},
		{BusinessID: b.ID, SourceURL: "https://directory-b.example.com/biz/77", Field: model.FieldPhone, Value: "905 555 1234", Confidence: 0.85},
		{BusinessID: b.ID, SourceURL: "https://directory-b.example.com/biz/77", Field: model.FieldPostalCode, Value: "l8p 1a1", Confidence: 0.85},
		{BusinessID: b.ID, SourceURL: "https://whois.example.com/bayfrontprintworks.ca", Field: model.FieldWebsiteAge, Value: "6.2", Confidence: 0.9},
		{BusinessID: b.ID, SourceURL: "https://estimator.example.com/revenue", Field: model.FieldRevenueEstimate, Value: "1200000", Confidence: 0.8},
	})
	require.NoError(t, err)
	require.NoError(t, store.UpdateStatus(ctx, b.ID, model.StatusEnriched))
}

func TestDiscoverCreatesNormalizedRecord(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	b, created, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	assert.True(t, created)

	assert.Len(t, b.Fingerprint, 16)
	assert.Equal(t, "Bayfront Print Works Inc.", b.OriginalName)
	assert.Equal(t, "bayfront print works", b.NormalizedName)
	assert.Equal(t, "100 king street west", b.Street)
	assert.Equal(t, "Hamilton", b.City)
	assert.Equal(t, "L8P1A1", b.PostalCode)
	assert.Equal(t, "9055551234", b.Phone)
	assert.Equal(t, "bayfrontprintworks.ca", b.Website)
	assert.Equal(t, model.StatusDiscovered, b.Status)

	// The draft's own claims become the first observations.
	obs, err := store.Observations(ctx, b.ID, "")
	require.NoError(t, err)
	assert.Len(t, obs, 4)
	for _, ob := range obs {
		assert.Equal(t, "https://directory-a.example.com/listing/8841", ob.SourceURL)
	}
}

func TestDiscoverDuplicateFingerprintCorroborates(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	first, created, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	require.True(t, created)

	// The same shop as a second directory formats it: different case,
	// punctuation, abbreviations, and a country code. Same fingerprint.
	dup := model.Draft{
		Name:       "BAYFRONT PRINT WORKS",
		Street:     "100 King Street West",
		City:       "Hamilton, ON",
		PostalCode: "l8p 1a1",
		Phone:      "+1 905 555 1234",
		SourceURL:  "https://directory-b.example.com/biz/77",
	}
	second, created, err := o.Discover(ctx, dup)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	all, err := store.ListBusinesses(ctx, evidence.BusinessFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	// The duplicate's claims landed as corroborating observations.
	addrObs, err := store.Observations(ctx, first.ID, model.FieldAddress)
	require.NoError(t, err)
	require.Len(t, addrObs, 2)
	sources := []string{addrObs[0].SourceURL, addrObs[1].SourceURL}
	assert.Contains(t, sources, "https://directory-a.example.com/listing/8841")
	assert.Contains(t, sources, "https://directory-b.example.com/biz/77")
}

func TestDiscoverDuplicateWaitsForEntityLock(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	locks := evidence.NewLocks()
	o := NewOrchestrator(store, hamiltonProvider(t), locks, 4)
	ctx := context.Background()

	b, created, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	require.True(t, created)

	before, err := store.Observations(ctx, b.ID, "")
	require.NoError(t, err)

	// Hold the entity lock the way a gate run does for its full
	// read-evaluate-write cycle.
	mu := locks.Get(b.ID)
	mu.Lock()

	dup := printShopDraft()
	dup.SourceURL = "https://directory-b.example.com/biz/77"

	var dupCreated bool
	done := make(chan error, 1)
	go func() {
		_, c, err := o.Discover(ctx, dup)
		dupCreated = c
		done <- err
	}()

	// The corroborating write must queue behind the held lock instead of
	// landing mid-cycle.
	select {
	case <-done:
		t.Fatal("duplicate discovery completed while the entity lock was held")
	case <-time.After(100 * time.Millisecond):
	}
	mid, err := store.Observations(ctx, b.ID, "")
	require.NoError(t, err)
	assert.Len(t, mid, len(before))

	mu.Unlock()
	require.NoError(t, <-done)
	assert.False(t, dupCreated)

	after, err := store.Observations(ctx, b.ID, "")
	require.NoError(t, err)
	assert.Greater(t, len(after), len(before))
}

func TestValidateQualifiedPersistsEveryGateRow(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	b, _, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	enrichToPassing(t, store, b)

	status, reasons, err := o.Validate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQualified, status)
	assert.Len(t, reasons, 5)

	got, err := store.BusinessByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQualified, got.Status)

	vals, err := store.Validations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, vals, 5)
	seen := map[string]bool{}
	for _, v := range vals {
		assert.True(t, v.Passed, "gate %s: %s", v.RuleID, v.Reason)
		seen[v.RuleID] = true
	}
	assert.Equal(t, map[string]bool{
		gate.RuleCategory:      true,
		gate.RuleGeography:     true,
		gate.RuleCorroboration: true,
		gate.RuleWebsiteAge:    true,
		gate.RuleRevenue:       true,
	}, seen)

	excl, err := store.Exclusions(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, excl)
}

func TestValidateRerunIsIdempotent(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	b, _, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	enrichToPassing(t, store, b)

	status1, _, err := o.Validate(ctx, b.ID)
	require.NoError(t, err)
	status2, _, err := o.Validate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, status1, status2)

	// Each run appended its own rows; per gate the two rows agree on
	// everything except identity.
	vals, err := store.Validations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, vals, 10)

	byRule := map[string][]model.Validation{}
	for _, v := range vals {
		byRule[v.RuleID] = append(byRule[v.RuleID], v)
	}
	require.Len(t, byRule, 5)
	for rule, rows := range byRule {
		require.Len(t, rows, 2, "rule %s", rule)
		assert.NotEqual(t, rows[0].ID, rows[1].ID)
		assert.Equal(t, rows[0].Passed, rows[1].Passed)
		assert.Equal(t, rows[0].Reason, rows[1].Reason)
		assert.Equal(t, rows[0].EvidenceIDs, rows[1].EvidenceIDs)
	}
}

func TestValidateSingleSourceGoesToReview(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	b, _, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	require.NoError(t, store.SetCoordinates(ctx, b.ID, 43.2585, -79.8690))

	status, reasons, err := o.Validate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusReviewRequired, status)
	require.NotEmpty(t, reasons)
	assert.Contains(t, reasons[len(reasons)-1], "single source")

	// Only the deciding gate's row is persisted, and no exclusion.
	vals, err := store.Validations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, gate.RuleCorroboration, vals[0].RuleID)
	assert.False(t, vals[0].Passed)

	excl, err := store.Exclusions(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, excl)
}

func TestValidateOutsideServiceAreaExcludes(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	b, _, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	enrichToPassing(t, store, b)

	// Downtown Toronto, roughly 58 km out.
	require.NoError(t, store.SetCoordinates(ctx, b.ID, 43.6532, -79.3832))

	status, reasons, err := o.Validate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExcluded, status)
	assert.Contains(t, reasons[len(reasons)-1], "exceeds")

	vals, err := store.Validations(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, vals, 1)
	assert.Equal(t, gate.RuleGeography, vals[0].RuleID)

	excl, err := store.Exclusions(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, excl, 1)
	assert.Equal(t, gate.RuleGeography, excl[0].RuleID)
	assert.Equal(t, vals[0].Reason, excl[0].Reason)
}

func TestValidateFlipsTerminalStatusOnNewEvidence(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	b, _, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	require.NoError(t, store.SetCoordinates(ctx, b.ID, 43.2585, -79.8690))

	status, _, err := o.Validate(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusReviewRequired, status)

	// A second directory and the signal lookups land afterwards.
	enrichToPassing(t, store, b)

	status, _, err = o.Validate(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQualified, status)

	got, err := store.BusinessByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusQualified, got.Status)
}

func TestValidateAllSummary(t *testing.T) {
	t.Parallel()
	o, store := newTestOrchestrator(t)
	ctx := context.Background()

	qualified, _, err := o.Discover(ctx, printShopDraft())
	require.NoError(t, err)
	enrichToPassing(t, store, qualified)

	blacklisted := printShopDraft()
	blacklisted.Name = "Lucky Casino Supplies"
	blacklisted.SourceURL = "https://directory-a.example.com/listing/9001"
	_, _, err = o.Discover(ctx, blacklisted)
	require.NoError(t, err)

	single := printShopDraft()
	single.Name = "Dundas Sign Shop"
	single.Street = "55 Main Street"
	single.City = "Dundas"
	single.PostalCode = "L9H 2P8"
	single.Phone = "905-555-9876"
	single.SourceURL = "https://directory-a.example.com/listing/9002"
	review, _, err := o.Discover(ctx, single)
	require.NoError(t, err)
	require.NoError(t, store.SetCoordinates(ctx, review.ID, 43.2667, -79.9560))

	summary, err := o.ValidateAll(ctx, evidence.BusinessFilter{})
	require.NoError(t, err)
	assert.Equal(t, Summary{Processed: 3, Qualified: 1, Excluded: 1, Review: 1}, summary)
}

func TestValidateUnknownBusiness(t *testing.T) {
	t.Parallel()
	o, _ := newTestOrchestrator(t)

	_, _, err := o.Validate(context.Background(), "no-such-id")
	assert.Error(t, err)
}
