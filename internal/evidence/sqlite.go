package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/crestway-partners/leadscout/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                TEXT PRIMARY KEY,
	fingerprint       TEXT NOT NULL UNIQUE,
	original_name     TEXT NOT NULL,
	normalized_name   TEXT NOT NULL,
	street            TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	postal_code       TEXT NOT NULL DEFAULT '',
	latitude          REAL,
	longitude         REAL,
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	employee_count    INTEGER,
	website_ok        INTEGER NOT NULL DEFAULT 0,
	website_age_years REAL NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'discovered',
	source_url        TEXT NOT NULL DEFAULT '',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	source_url  TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       TEXT NOT NULL,
	confidence  REAL NOT NULL,
	observed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS validations (
	id           TEXT PRIMARY KEY,
	business_id  TEXT NOT NULL REFERENCES businesses(id),
	rule_id      TEXT NOT NULL,
	passed       INTEGER NOT NULL,
	reason       TEXT NOT NULL,
	evidence_ids TEXT NOT NULL DEFAULT '[]',
	validated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS exclusions (
	id           TEXT PRIMARY KEY,
	business_id  TEXT NOT NULL REFERENCES businesses(id),
	rule_id      TEXT NOT NULL,
	reason       TEXT NOT NULL,
	evidence_ids TEXT NOT NULL DEFAULT '[]',
	excluded_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS lookup_cache (
	key        TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	cached_at  DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
CREATE INDEX IF NOT EXISTS idx_businesses_city ON businesses(city);
CREATE INDEX IF NOT EXISTS idx_observations_business ON observations(business_id);
CREATE INDEX IF NOT EXISTS idx_observations_business_field ON observations(business_id, field);
CREATE INDEX IF NOT EXISTS idx_validations_business ON validations(business_id);
CREATE INDEX IF NOT EXISTS idx_exclusions_business ON exclusions(business_id);
CREATE INDEX IF NOT EXISTS idx_lookup_cache_expires ON lookup_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBusiness(ctx context.Context, b *model.Business) (*model.Business, error) {
	existing, err := s.BusinessByFingerprint(ctx, b.Fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateFingerprint
	}

	created := *b
	created.ID = uuid.New().String()
	created.Status = model.StatusDiscovered
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO businesses
		 (id, fingerprint, original_name, normalized_name, street, city, postal_code,
		  latitude, longitude, phone, website, employee_count, website_ok,
		  website_age_years, status, source_url, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Fingerprint, created.OriginalName, created.NormalizedName,
		created.Street, created.City, created.PostalCode,
		nullFloat(created.Latitude), nullFloat(created.Longitude),
		created.Phone, created.Website, nullInt(created.EmployeeCount),
		boolToInt(created.WebsiteOK), created.WebsiteAgeYears,
		string(created.Status), created.SourceURL, now, now,
	)
	if err != nil {
		// Lost a race with a concurrent discovery of the same fingerprint.
		if dup, lookupErr := s.BusinessByFingerprint(ctx, b.Fingerprint); lookupErr == nil && dup != nil {
			return nil, ErrDuplicateFingerprint
		}
		return nil, eris.Wrap(err, "sqlite: insert business")
	}
	return &created, nil
}

const sqliteBusinessColumns = `id, fingerprint, original_name, normalized_name, street, city,
	postal_code, latitude, longitude, phone, website, employee_count, website_ok,
	website_age_years, status, source_url, created_at, updated_at`

func (s *SQLiteStore) BusinessByID(ctx context.Context, id string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteBusinessColumns+` FROM businesses WHERE id = ?`, id)
	b, err := scanBusiness(row)
	if err == errNoBusiness {
		return nil, eris.Errorf("business not found: %s", id)
	}
	return b, err
}

func (s *SQLiteStore) BusinessByFingerprint(ctx context.Context, fingerprint string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteBusinessColumns+` FROM businesses WHERE fingerprint = ?`, fingerprint)
	b, err := scanBusiness(row)
	if err == errNoBusiness {
		return nil, nil
	}
	return b, err
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT ` + sqliteBusinessColumns + ` FROM businesses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.City != "" {
		query += ` AND city = ?`
		args = append(args, filter.City)
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "sqlite: list businesses iterate")
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", id)
	}
	return checkRowsAffected(res, "business", id)
}

func (s *SQLiteStore) SetCoordinates(ctx context.Context, id string, lat, lon float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`,
		lat, lon, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set coordinates %s", id)
	}
	return checkRowsAffected(res, "business", id)
}

func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, id string, websiteOK bool, websiteAgeYears float64, employeeCount *int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET website_ok = ?, website_age_years = ?, employee_count = ?, updated_at = ? WHERE id = ?`,
		boolToInt(websiteOK), websiteAgeYears, nullInt(employeeCount), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update enrichment %s", id)
	}
	return checkRowsAffected(res, "business", id)
}

func (s *SQLiteStore) PutObservation(ctx context.Context, obs model.Observation) (string, error) {
	id := uuid.New().String()
	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO observations (id, business_id, source_url, field, value, confidence, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, obs.BusinessID, obs.SourceURL, obs.Field, obs.Value, obs.Confidence, observedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert observation for %s", obs.BusinessID)
	}
	return id, nil
}

func (s *SQLiteStore) PutObservations(ctx context.Context, obs []model.Observation) ([]string, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin observations tx")
	}
	defer tx.Rollback() //nolint:errcheck

	ids := make([]string, 0, len(obs))
	for _, o := range obs {
		id := uuid.New().String()
		observedAt := o.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now().UTC()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO observations (id, business_id, source_url, field, value, confidence, observed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, o.BusinessID, o.SourceURL, o.Field, o.Value, o.Confidence, observedAt,
		); err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert observation for %s", o.BusinessID)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit observations")
	}
	return ids, nil
}

func (s *SQLiteStore) PutValidation(ctx context.Context, v model.Validation) (string, error) {
	id := uuid.New().String()
	validatedAt := v.ValidatedAt
	if validatedAt.IsZero() {
		validatedAt = time.Now().UTC()
	}

	evidenceJSON, err := marshalEvidenceIDs(v.EvidenceIDs)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO validations (id, business_id, rule_id, passed, reason, evidence_ids, validated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, v.BusinessID, v.RuleID, boolToInt(v.Passed), v.Reason, evidenceJSON, validatedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert validation for %s", v.BusinessID)
	}
	return id, nil
}

func (s *SQLiteStore) PutExclusion(ctx context.Context, e model.Exclusion) (string, error) {
	id := uuid.New().String()
	excludedAt := e.ExcludedAt
	if excludedAt.IsZero() {
		excludedAt = time.Now().UTC()
	}

	evidenceJSON, err := marshalEvidenceIDs(e.EvidenceIDs)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO exclusions (id, business_id, rule_id, reason, evidence_ids, excluded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, e.BusinessID, e.RuleID, e.Reason, evidenceJSON, excludedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert exclusion for %s", e.BusinessID)
	}
	return id, nil
}

func (s *SQLiteStore) Observations(ctx context.Context, businessID, field string) ([]model.Observation, error) {
	query := `SELECT id, business_id, source_url, field, value, confidence, observed_at
	          FROM observations WHERE business_id = ?`
	args := []any{businessID}

	if field != "" {
		query += ` AND field = ?`
		args = append(args, field)
	}
	query += ` ORDER BY observed_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: observations for %s", businessID)
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.ID, &o.BusinessID, &o.SourceURL, &o.Field, &o.Value, &o.Confidence, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		observations = append(observations, o)
	}
	return observations, eris.Wrap(rows.Err(), "sqlite: observations iterate")
}

func (s *SQLiteStore) Validations(ctx context.Context, businessID string) ([]model.Validation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, rule_id, passed, reason, evidence_ids, validated_at
		 FROM validations WHERE business_id = ? ORDER BY validated_at DESC, id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: validations for %s", businessID)
	}
	defer rows.Close()

	var validations []model.Validation
	for rows.Next() {
		var v model.Validation
		var passed int
		var evidenceJSON string
		if err := rows.Scan(&v.ID, &v.BusinessID, &v.RuleID, &passed, &v.Reason, &evidenceJSON, &v.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan validation")
		}
		v.Passed = passed != 0
		if err := json.Unmarshal([]byte(evidenceJSON), &v.EvidenceIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal evidence ids")
		}
		validations = append(validations, v)
	}
	return validations, eris.Wrap(rows.Err(), "sqlite: validations iterate")
}

func (s *SQLiteStore) Exclusions(ctx context.Context, businessID string) ([]model.Exclusion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, business_id, rule_id, reason, evidence_ids, excluded_at
		 FROM exclusions WHERE business_id = ? ORDER BY excluded_at DESC, id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: exclusions for %s", businessID)
	}
	defer rows.Close()

	var exclusions []model.Exclusion
	for rows.Next() {
		var e model.Exclusion
		var evidenceJSON string
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.RuleID, &e.Reason, &evidenceJSON, &e.ExcludedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exclusion")
		}
		if err := json.Unmarshal([]byte(evidenceJSON), &e.EvidenceIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal evidence ids")
		}
		exclusions = append(exclusions, e)
	}
	return exclusions, eris.Wrap(rows.Err(), "sqlite: exclusions iterate")
}

func (s *SQLiteStore) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM businesses GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: status counts")
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan status count")
		}
		counts[model.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: status counts iterate")
}

func (s *SQLiteStore) GateFailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, COUNT(*) FROM validations WHERE passed = 0 GROUP BY rule_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: gate failure counts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ruleID string
		var n int
		if err := rows.Scan(&ruleID, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan gate failure count")
		}
		counts[ruleID] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: gate failure counts iterate")
}

func (s *SQLiteStore) GetCachedLookup(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM lookup_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cached lookup")
	}
	return []byte(data), nil
}

func (s *SQLiteStore) SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, string(data), now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached lookup")
}

func (s *SQLiteStore) DeleteExpiredLookups(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lookup_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired lookups")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

var errNoBusiness = eris.New("no business row")

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBusiness(row scannable) (*model.Business, error) {
	var b model.Business
	var lat, lon sql.NullFloat64
	var employees sql.NullInt64
	var websiteOK int
	var status string

	err := row.Scan(&b.ID, &b.Fingerprint, &b.OriginalName, &b.NormalizedName,
		&b.Street, &b.City, &b.PostalCode, &lat, &lon, &b.Phone, &b.Website,
		&employees, &websiteOK, &b.WebsiteAgeYears, &status, &b.SourceURL,
		&b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errNoBusiness
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan business")
	}

	if lat.Valid {
		b.Latitude = &lat.Float64
	}
	if lon.Valid {
		b.Longitude = &lon.Float64
	}
	if employees.Valid {
		n := int(employees.Int64)
		b.EmployeeCount = &n
	}
	b.WebsiteOK = websiteOK != 0
	b.Status = model.Status(status)
	return &b, nil
}

func marshalEvidenceIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", eris.Wrap(err, "marshal evidence ids")
	}
	return string(data), nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
