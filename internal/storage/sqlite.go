package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"promowatch/internal/model"
	"promowatch/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const (
	rawTable   = "promotions"
	cleanTable = "clean_promotions"
)

const recordColumns = `id, competitor, country, title, description, bonus_amount, bonus_type,
	conditions, wagering, valid_until, url, scraped_at, hash_id`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serializes writers, so two runs for the same country
	// cannot interleave their batches. It also keeps ":memory:" databases
	// from being split across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// DB exposes the underlying handle for schema inspection.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// InsertRaw appends scraped records to the raw table.
func (s *SQLite) InsertRaw(ctx context.Context, records []model.PromotionRecord) (int, error) {
	return s.insert(ctx, rawTable, records)
}

// InsertClean appends cleaned records to the table the comparator reads.
func (s *SQLite) InsertClean(ctx context.Context, records []model.PromotionRecord) (int, error) {
	return s.insert(ctx, cleanTable, records)
}

func (s *SQLite) insert(ctx context.Context, table string, records []model.PromotionRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO `+table+`
		(competitor, country, title, description, bonus_amount, bonus_type,
		 conditions, wagering, valid_until, url, scraped_at, scraped_day, hash_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, unavailable("prepare insert "+table, err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for _, r := range records {
		if r.HashID == "" {
			r.HashID = model.ContentHash(r.Competitor, r.Title, r.BonusAmount, r.BonusType)
		}
		at := r.ScrapedAt.UTC()
		res, err := stmt.ExecContext(ctx,
			r.Competitor, r.Country, r.Title, r.Description, r.BonusAmount, r.BonusType,
			r.Conditions, r.Wagering, r.ValidUntil, r.URL,
			at.Format(timeLayout), at.Format(model.DateLayout), r.HashID,
		)
		if err != nil {
			return 0, unavailable("insert into "+table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, unavailable("rows affected", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit", err)
	}
	return inserted, nil
}

// RawRecordsOn returns the raw records of country scraped on day.
func (s *SQLite) RawRecordsOn(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error) {
	return s.records(ctx, rawTable, "=", country, day)
}

// CleanRecordsOn returns the cleaned records of country scraped on day.
func (s *SQLite) CleanRecordsOn(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error) {
	return s.records(ctx, cleanTable, "=", country, day)
}

// CleanRecordsBefore returns every cleaned record of country scraped
// before day.
func (s *SQLite) CleanRecordsBefore(ctx context.Context, country string, day time.Time) ([]model.PromotionRecord, error) {
	return s.records(ctx, cleanTable, "<", country, day)
}

func (s *SQLite) records(ctx context.Context, table, op, country string, day time.Time) ([]model.PromotionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+`
		 WHERE country = ? AND scraped_day `+op+` ?
		 ORDER BY competitor, title, id`,
		country, day.UTC().Format(model.DateLayout),
	)
	if err != nil {
		return nil, unavailable("query "+table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PromotionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate "+table, err)
	}
	return out, nil
}

// SaveComparison appends a comparison summary and populates its ID and
// CreatedAt.
func (s *SQLite) SaveComparison(ctx context.Context, c *model.ComparisonSummary) error {
	competitors := c.CompetitorsAnalyzed
	if competitors == nil {
		competitors = []string{}
	}
	encoded, err := json.Marshal(competitors)
	if err != nil {
		return fmt.Errorf("encode competitors: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO comparison_results
		 (run_id, comparison_date, country, mode, new_count, removed_count,
		  total_current, total_previous, excluded_invalid, competitors_analyzed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.RunID, c.ComparisonDate, c.Country, string(c.Mode), c.NewCount, c.RemovedCount,
		c.TotalCurrent, c.TotalPrevious, c.ExcludedInvalid, string(encoded), now,
	)
	if err != nil {
		return unavailable("insert comparison", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return unavailable("last insert id", err)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// LatestComparison returns the most recent comparison summary of country,
// or model.ErrNotFound when none was run yet.
func (s *SQLite) LatestComparison(ctx context.Context, country string) (*model.ComparisonSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, run_id, comparison_date, country, mode, new_count, removed_count,
		        total_current, total_previous, excluded_invalid, competitors_analyzed, created_at
		 FROM comparison_results WHERE country = ? ORDER BY id DESC LIMIT 1`, country,
	)

	var c model.ComparisonSummary
	var mode, competitors, created string
	err := row.Scan(&c.ID, &c.RunID, &c.ComparisonDate, &c.Country, &mode, &c.NewCount, &c.RemovedCount,
		&c.TotalCurrent, &c.TotalPrevious, &c.ExcludedInvalid, &competitors, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest comparison for %s: %w", country, model.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("scan comparison", err)
	}
	c.Mode = model.CompareMode(mode)
	if err := json.Unmarshal([]byte(competitors), &c.CompetitorsAnalyzed); err != nil {
		return nil, fmt.Errorf("decode competitors: %w", err)
	}
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return &c, nil
}

// Stats aggregates the cleaned promotions of country.
func (s *SQLite) Stats(ctx context.Context, country string) (*model.Stats, error) {
	st := &model.Stats{
		Country:      country,
		ByCompetitor: map[string]int{},
		ByType:       map[string]int{},
	}

	var latest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MAX(scraped_at) FROM clean_promotions WHERE country = ?`, country,
	).Scan(&st.Total, &latest)
	if err != nil {
		return nil, unavailable("count promotions", err)
	}
	if latest.Valid {
		t, _ := time.Parse(timeLayout, latest.String)
		st.LatestScraping = &t
	}

	if err := s.countBy(ctx, "competitor", country, st.ByCompetitor); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "bonus_type", country, st.ByType); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *SQLite) countBy(ctx context.Context, column, country string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM clean_promotions WHERE country = ? GROUP BY `+column, country,
	)
	if err != nil {
		return unavailable("count by "+column, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return unavailable("scan count by "+column, err)
		}
		into[key] = n
	}
	if err := rows.Err(); err != nil {
		return unavailable("iterate count by "+column, err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (model.PromotionRecord, error) {
	var r model.PromotionRecord
	var scraped string
	err := row.Scan(&r.ID, &r.Competitor, &r.Country, &r.Title, &r.Description, &r.BonusAmount, &r.BonusType,
		&r.Conditions, &r.Wagering, &r.ValidUntil, &r.URL, &scraped, &r.HashID)
	if err != nil {
		return r, unavailable("scan promotion", err)
	}
	r.ScrapedAt, _ = time.Parse(timeLayout, scraped)
	return r, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorageUnavailable, err)
}
