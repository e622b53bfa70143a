package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const dateLayout = "2006-01-02"

// Case record codes.
const (
	EvolutionCure       = 1
	EvolutionDeath      = 2
	EvolutionDeathOther = 3
	AnswerYes           = 1
	AnswerNo            = 2
	AnswerIgnored       = 9
)

// Record is one notified case of severe acute respiratory syndrome.
type Record struct {
	Date      string // notification date, YYYY-MM-DD
	Evolution int    // EvolutionCure, EvolutionDeath, EvolutionDeathOther, or 0/AnswerIgnored when open
	ICU       int    // AnswerYes, AnswerNo, AnswerIgnored
	Vaccine   int    // AnswerYes, AnswerNo, AnswerIgnored
}

const recordsSchema = `
	CREATE TABLE IF NOT EXISTS srag_records (
		DT_NOTIFIC TEXT NOT NULL,
		EVOLUCAO INTEGER,
		UTI INTEGER,
		VACINA INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_srag_records_date ON srag_records(DT_NOTIFIC);`

// SQLSource computes metrics and chart series from the srag_records table.
// It implements MetricsSource and ChartCalculator.
type SQLSource struct {
	db *sql.DB
}

// NewSQLSource wraps an open database holding srag_records.
func NewSQLSource(db *sql.DB) *SQLSource {
	return &SQLSource{db: db}
}

// OpenSQLite opens or creates a SQLite database at path and ensures the
// records table exists. Use ":memory:" for a throwaway database.
func OpenSQLite(path string) (*SQLSource, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(recordsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLSource{db: db}, nil
}

func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Insert adds records in a single transaction.
func (s *SQLSource) Insert(ctx context.Context, records ...Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO srag_records (DT_NOTIFIC, EVOLUCAO, UTI, VACINA) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := time.Parse(dateLayout, r.Date); err != nil {
			return fmt.Errorf("record date %q: %w", r.Date, err)
		}
		if _, err := stmt.ExecContext(ctx, r.Date, nullCode(r.Evolution), nullCode(r.ICU), nullCode(r.Vaccine)); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

func nullCode(code int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(code), Valid: code != 0}
}

// Metrics computes the headline rates over all records.
//
// Mortality is deaths over closed cases (any evolution code 1 to 3). ICU and
// vaccination rates exclude ignored answers. The increase rate compares the
// 30 days ending at the latest notification with the 30 days before.
func (s *SQLSource) Metrics(ctx context.Context) (Metrics, error) {
	var (
		total, deaths, closed, icu, icuKnown, vaccinated, vaccineKnown int
		latest                                                        sql.NullString
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN EVOLUCAO = 2 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN EVOLUCAO IN (1, 2, 3) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN UTI = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN UTI IN (1, 2) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN VACINA = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN VACINA IN (1, 2) THEN 1 ELSE 0 END), 0),
			MAX(DT_NOTIFIC)
		FROM srag_records`,
	).Scan(&total, &deaths, &closed, &icu, &icuKnown, &vaccinated, &vaccineKnown, &latest)
	if err != nil {
		return Metrics{}, fmt.Errorf("query metrics: %w", err)
	}

	m := Metrics{
		MortalityRate:   percent(deaths, closed),
		ICURate:         percent(icu, icuKnown),
		VaccinationRate: percent(vaccinated, vaccineKnown),
		TotalCases:      total,
	}

	if !latest.Valid {
		return m, nil
	}

	var current, previous int
	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN DT_NOTIFIC > date(?1, '-30 days') AND DT_NOTIFIC <= ?1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN DT_NOTIFIC > date(?1, '-60 days') AND DT_NOTIFIC <= date(?1, '-30 days') THEN 1 ELSE 0 END), 0)
		FROM srag_records`,
		latest.String,
	).Scan(&current, &previous)
	if err != nil {
		return Metrics{}, fmt.Errorf("query case increase: %w", err)
	}

	if previous > 0 {
		m.IncreaseRate = round2(float64(current-previous) / float64(previous) * 100)
	}
	return m, nil
}

// ChartData returns daily counts for the 30 days ending at the latest
// notification, zero-filled, and monthly counts for the last 12 months.
func (s *SQLSource) ChartData(ctx context.Context) (ChartData, error) {
	var latest sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(DT_NOTIFIC) FROM srag_records`).Scan(&latest); err != nil {
		return ChartData{}, fmt.Errorf("query latest date: %w", err)
	}
	if !latest.Valid {
		return ChartData{Daily: []Count{}, Monthly: []Count{}}, nil
	}

	end, err := time.Parse(dateLayout, latest.String)
	if err != nil {
		return ChartData{}, fmt.Errorf("latest date %q: %w", latest.String, err)
	}

	daily, err := s.counts(ctx, `
		SELECT DT_NOTIFIC, COUNT(*) FROM srag_records
		WHERE DT_NOTIFIC > date(?1, '-30 days') AND DT_NOTIFIC <= ?1
		GROUP BY DT_NOTIFIC ORDER BY DT_NOTIFIC`, latest.String)
	if err != nil {
		return ChartData{}, fmt.Errorf("query daily cases: %w", err)
	}

	monthly, err := s.counts(ctx, `
		SELECT substr(DT_NOTIFIC, 1, 7), COUNT(*) FROM srag_records
		WHERE DT_NOTIFIC > date(?1, 'start of month', '-11 months', '-1 day') AND DT_NOTIFIC <= ?1
		GROUP BY 1 ORDER BY 1`, latest.String)
	if err != nil {
		return ChartData{}, fmt.Errorf("query monthly cases: %w", err)
	}

	return ChartData{
		Daily:   fillDays(daily, end, 30),
		Monthly: monthly,
	}, nil
}

func (s *SQLSource) counts(ctx context.Context, query string, args ...any) ([]Count, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Count{}
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Period, &c.Cases); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// fillDays returns one Count per day for the n days ending at end.
func fillDays(sparse []Count, end time.Time, n int) []Count {
	byDay := make(map[string]int, len(sparse))
	for _, c := range sparse {
		byDay[c.Period] = c.Cases
	}

	out := make([]Count, n)
	for i := range n {
		day := end.AddDate(0, 0, i-n+1).Format(dateLayout)
		out[i] = Count{Period: day, Cases: byDay[day]}
	}
	return out
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
