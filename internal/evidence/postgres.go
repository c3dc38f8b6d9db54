package evidence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/crestway-partners/leadscout/internal/db"
	"github.com/crestway-partners/leadscout/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"business_by_fingerprint": `SELECT ` + pgBusinessColumns + ` FROM businesses WHERE fingerprint = $1`,
	"business_by_id":          `SELECT ` + pgBusinessColumns + ` FROM businesses WHERE id = $1`,
	"update_status":           `UPDATE businesses SET status = $1, updated_at = $2 WHERE id = $3`,
	"insert_observation":      `INSERT INTO observations (id, business_id, source_url, field, value, confidence, observed_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"observations_by_field":   `SELECT id, business_id, source_url, field, value, confidence, observed_at FROM observations WHERE business_id = $1 AND field = $2 ORDER BY observed_at DESC, id`,
	"insert_validation":       `INSERT INTO validations (id, business_id, rule_id, passed, reason, evidence_ids, validated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_cached_lookup":       `SELECT data FROM lookup_cache WHERE key = $1 AND expires_at > now()`,
	"set_cached_lookup":       `INSERT INTO lookup_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4) ON CONFLICT (key) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const pgBusinessColumns = `id, fingerprint, original_name, normalized_name, street, city,
	postal_code, latitude, longitude, phone, website, employee_count, website_ok,
	website_age_years, status, source_url, created_at, updated_at`

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id                TEXT PRIMARY KEY,
	fingerprint       TEXT NOT NULL UNIQUE,
	original_name     TEXT NOT NULL,
	normalized_name   TEXT NOT NULL,
	street            TEXT NOT NULL DEFAULT '',
	city              TEXT NOT NULL DEFAULT '',
	postal_code       TEXT NOT NULL DEFAULT '',
	latitude          DOUBLE PRECISION,
	longitude         DOUBLE PRECISION,
	phone             TEXT NOT NULL DEFAULT '',
	website           TEXT NOT NULL DEFAULT '',
	employee_count    INTEGER,
	website_ok        BOOLEAN NOT NULL DEFAULT false,
	website_age_years DOUBLE PRECISION NOT NULL DEFAULT 0,
	status            TEXT NOT NULL DEFAULT 'discovered',
	source_url        TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS observations (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	source_url  TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       TEXT NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS validations (
	id           TEXT PRIMARY KEY,
	business_id  TEXT NOT NULL REFERENCES businesses(id),
	rule_id      TEXT NOT NULL,
	passed       BOOLEAN NOT NULL,
	reason       TEXT NOT NULL,
	evidence_ids JSONB NOT NULL DEFAULT '[]',
	validated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS exclusions (
	id           TEXT PRIMARY KEY,
	business_id  TEXT NOT NULL REFERENCES businesses(id),
	rule_id      TEXT NOT NULL,
	reason       TEXT NOT NULL,
	evidence_ids JSONB NOT NULL DEFAULT '[]',
	excluded_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lookup_cache (
	key        TEXT PRIMARY KEY,
	data       JSONB NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
CREATE INDEX IF NOT EXISTS idx_businesses_city ON businesses(city);
CREATE INDEX IF NOT EXISTS idx_observations_business ON observations(business_id);
CREATE INDEX IF NOT EXISTS idx_observations_business_field ON observations(business_id, field);
CREATE INDEX IF NOT EXISTS idx_validations_business ON validations(business_id);
CREATE INDEX IF NOT EXISTS idx_validations_rule_passed ON validations(rule_id, passed);
CREATE INDEX IF NOT EXISTS idx_exclusions_business ON exclusions(business_id);
CREATE INDEX IF NOT EXISTS idx_lookup_cache_expires ON lookup_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateBusiness(ctx context.Context, b *model.Business) (*model.Business, error) {
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

	_, err = s.pool.Exec(ctx,
		`INSERT INTO businesses
		 (id, fingerprint, original_name, normalized_name, street, city, postal_code,
		  latitude, longitude, phone, website, employee_count, website_ok,
		  website_age_years, status, source_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		created.ID, created.Fingerprint, created.OriginalName, created.NormalizedName,
		created.Street, created.City, created.PostalCode,
		created.Latitude, created.Longitude, created.Phone, created.Website,
		created.EmployeeCount, created.WebsiteOK, created.WebsiteAgeYears,
		string(created.Status), created.SourceURL, now, now,
	)
	if err != nil {
		// Lost a race with a concurrent discovery of the same fingerprint.
		if dup, lookupErr := s.BusinessByFingerprint(ctx, b.Fingerprint); lookupErr == nil && dup != nil {
			return nil, ErrDuplicateFingerprint
		}
		return nil, eris.Wrap(err, "postgres: insert business")
	}
	return &created, nil
}

func (s *PostgresStore) BusinessByID(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgBusinessColumns+` FROM businesses WHERE id = $1`, id)
	b, err := scanPgBusiness(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Errorf("business not found: %s", id)
		}
		return nil, eris.Wrapf(err, "postgres: get business %s", id)
	}
	return b, nil
}

func (s *PostgresStore) BusinessByFingerprint(ctx context.Context, fingerprint string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgBusinessColumns+` FROM businesses WHERE fingerprint = $1`, fingerprint)
	b, err := scanPgBusiness(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get business by fingerprint")
	}
	return b, nil
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT ` + pgBusinessColumns + ` FROM businesses WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.City != "" {
		query += fmt.Sprintf(` AND city = $%d`, argIdx)
		args = append(args, filter.City)
		argIdx++
	}
	query += ` ORDER BY created_at DESC, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var businesses []model.Business
	for rows.Next() {
		b, err := scanPgBusiness(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan business")
		}
		businesses = append(businesses, *b)
	}
	return businesses, eris.Wrap(rows.Err(), "postgres: list businesses iterate")
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) SetCoordinates(ctx context.Context, id string, lat, lon float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET latitude = $1, longitude = $2, updated_at = $3 WHERE id = $4`,
		lat, lon, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set coordinates %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) UpdateEnrichment(ctx context.Context, id string, websiteOK bool, websiteAgeYears float64, employeeCount *int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET website_ok = $1, website_age_years = $2, employee_count = $3, updated_at = $4 WHERE id = $5`,
		websiteOK, websiteAgeYears, employeeCount, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update enrichment %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("business not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) PutObservation(ctx context.Context, obs model.Observation) (string, error) {
	id := uuid.New().String()
	observedAt := obs.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO observations (id, business_id, source_url, field, value, confidence, observed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, obs.BusinessID, obs.SourceURL, obs.Field, obs.Value, obs.Confidence, observedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert observation for %s", obs.BusinessID)
	}
	return id, nil
}

// PutObservations bulk-appends observations with the COPY protocol. IDs are
// assigned client-side so they can be returned without a round trip per row.
func (s *PostgresStore) PutObservations(ctx context.Context, obs []model.Observation) ([]string, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(obs))
	rows := make([][]any, len(obs))
	for i, o := range obs {
		ids[i] = uuid.New().String()
		observedAt := o.ObservedAt
		if observedAt.IsZero() {
			observedAt = time.Now().UTC()
		}
		rows[i] = []any{ids[i], o.BusinessID, o.SourceURL, o.Field, o.Value, o.Confidence, observedAt}
	}

	if _, err := db.CopyFrom(ctx, s.pool, "observations",
		[]string{"id", "business_id", "source_url", "field", "value", "confidence", "observed_at"},
		rows,
	); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *PostgresStore) PutValidation(ctx context.Context, v model.Validation) (string, error) {
	id := uuid.New().String()
	validatedAt := v.ValidatedAt
	if validatedAt.IsZero() {
		validatedAt = time.Now().UTC()
	}

	evidenceJSON, err := marshalEvidenceIDs(v.EvidenceIDs)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO validations (id, business_id, rule_id, passed, reason, evidence_ids, validated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, v.BusinessID, v.RuleID, v.Passed, v.Reason, []byte(evidenceJSON), validatedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert validation for %s", v.BusinessID)
	}
	return id, nil
}

func (s *PostgresStore) PutExclusion(ctx context.Context, e model.Exclusion) (string, error) {
	id := uuid.New().String()
	excludedAt := e.ExcludedAt
	if excludedAt.IsZero() {
		excludedAt = time.Now().UTC()
	}

	evidenceJSON, err := marshalEvidenceIDs(e.EvidenceIDs)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO exclusions (id, business_id, rule_id, reason, evidence_ids, excluded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, e.BusinessID, e.RuleID, e.Reason, []byte(evidenceJSON), excludedAt,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert exclusion for %s", e.BusinessID)
	}
	return id, nil
}

func (s *PostgresStore) Observations(ctx context.Context, businessID, field string) ([]model.Observation, error) {
	query := `SELECT id, business_id, source_url, field, value, confidence, observed_at
	          FROM observations WHERE business_id = $1`
	args := []any{businessID}

	if field != "" {
		query += ` AND field = $2`
		args = append(args, field)
	}
	query += ` ORDER BY observed_at DESC, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: observations for %s", businessID)
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var o model.Observation
		if err := rows.Scan(&o.ID, &o.BusinessID, &o.SourceURL, &o.Field, &o.Value, &o.Confidence, &o.ObservedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		observations = append(observations, o)
	}
	return observations, eris.Wrap(rows.Err(), "postgres: observations iterate")
}

func (s *PostgresStore) Validations(ctx context.Context, businessID string) ([]model.Validation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, rule_id, passed, reason, evidence_ids, validated_at
		 FROM validations WHERE business_id = $1 ORDER BY validated_at DESC, id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: validations for %s", businessID)
	}
	defer rows.Close()

	var validations []model.Validation
	for rows.Next() {
		var v model.Validation
		var evidenceJSON []byte
		if err := rows.Scan(&v.ID, &v.BusinessID, &v.RuleID, &v.Passed, &v.Reason, &evidenceJSON, &v.ValidatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan validation")
		}
		if err := json.Unmarshal(evidenceJSON, &v.EvidenceIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal evidence ids")
		}
		validations = append(validations, v)
	}
	return validations, eris.Wrap(rows.Err(), "postgres: validations iterate")
}

func (s *PostgresStore) Exclusions(ctx context.Context, businessID string) ([]model.Exclusion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, business_id, rule_id, reason, evidence_ids, excluded_at
		 FROM exclusions WHERE business_id = $1 ORDER BY excluded_at DESC, id`,
		businessID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: exclusions for %s", businessID)
	}
	defer rows.Close()

	var exclusions []model.Exclusion
	for rows.Next() {
		var e model.Exclusion
		var evidenceJSON []byte
		if err := rows.Scan(&e.ID, &e.BusinessID, &e.RuleID, &e.Reason, &evidenceJSON, &e.ExcludedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exclusion")
		}
		if err := json.Unmarshal(evidenceJSON, &e.EvidenceIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal evidence ids")
		}
		exclusions = append(exclusions, e)
	}
	return exclusions, eris.Wrap(rows.Err(), "postgres: exclusions iterate")
}

func (s *PostgresStore) StatusCounts(ctx context.Context) (map[model.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM businesses GROUP BY status`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: status counts")
	}
	defer rows.Close()

	counts := make(map[model.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan status count")
		}
		counts[model.Status(status)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: status counts iterate")
}

func (s *PostgresStore) GateFailureCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rule_id, COUNT(*) FROM validations WHERE passed = false GROUP BY rule_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: gate failure counts")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ruleID string
		var n int
		if err := rows.Scan(&ruleID, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan gate failure count")
		}
		counts[ruleID] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: gate failure counts iterate")
}

func (s *PostgresStore) GetCachedLookup(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM lookup_cache WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cached lookup")
	}
	return data, nil
}

func (s *PostgresStore) SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lookup_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET data = $2, cached_at = $3, expires_at = $4`,
		key, data, now, now.Add(ttl),
	)
	return eris.Wrap(err, "postgres: set cached lookup")
}

func (s *PostgresStore) DeleteExpiredLookups(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM lookup_cache WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired lookups")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgBusiness(row scannable) (*model.Business, error) {
	var b model.Business
	var lat, lon *float64
	var employees *int
	var status string

	err := row.Scan(&b.ID, &b.Fingerprint, &b.OriginalName, &b.NormalizedName,
		&b.Street, &b.City, &b.PostalCode, &lat, &lon, &b.Phone, &b.Website,
		&employees, &b.WebsiteOK, &b.WebsiteAgeYears, &status, &b.SourceURL,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.Latitude = lat
	b.Longitude = lon
	b.EmployeeCount = employees
	b.Status = model.Status(status)
	return &b, nil
}
