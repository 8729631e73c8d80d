// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fingerprint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/brim-extract/pkg/types"
)

// ErrInvalidIdentifier is returned when a view, column or table name is not
// a plain SQL identifier.
var ErrInvalidIdentifier = errors.New("invalid SQL identifier")

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Aggregate is the raw answer to one fingerprint query.
type Aggregate struct {
	RecordCount int64
	LatestDate  string
	IDSetSize   int64
}

// Source answers the per-subject aggregate query for a view.
type Source interface {
	Ping(ctx context.Context) error
	Aggregate(ctx context.Context, spec types.ViewSpec, subjectID string) (Aggregate, error)
}

// SQLSource runs fingerprint queries over any database/sql driver.
// The sqlite3 and pgx drivers are registered by this package.
type SQLSource struct {
	db *sqlx.DB
}

// NewSQLSource wraps an open connection.
func NewSQLSource(db *sqlx.DB) *SQLSource {
	return &SQLSource{db: db}
}

// OpenSQLSource opens driver/dsn and verifies the connection.
func OpenSQLSource(ctx context.Context, driver, dsn string) (*SQLSource, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s source: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to %s source: %w", driver, err)
	}
	return &SQLSource{db: db}, nil
}

// Close releases the connection.
func (s *SQLSource) Close() error {
	return s.db.Close()
}

// Ping verifies the source is reachable.
func (s *SQLSource) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type aggregateRow struct {
	RecordCount int64          `db:"record_count"`
	LatestDate  sql.NullString `db:"latest_date"`
	IDSetSize   int64          `db:"id_set_size"`
}

// Aggregate counts the subject's rows, finds the latest coalesced date and
// counts distinct keys in one query. No rows is a zero aggregate.
func (s *SQLSource) Aggregate(ctx context.Context, spec types.ViewSpec, subjectID string) (Aggregate, error) {
	query, err := buildAggregateQuery(spec)
	if err != nil {
		return Aggregate{}, err
	}

	var row aggregateRow
	err = s.db.GetContext(ctx, &row, s.db.Rebind(query), subjectID)
	if errors.Is(err, sql.ErrNoRows) {
		return Aggregate{}, nil
	}
	if err != nil {
		return Aggregate{}, fmt.Errorf("querying view %s: %w", spec.Name, err)
	}

	return Aggregate{
		RecordCount: row.RecordCount,
		LatestDate:  row.LatestDate.String,
		IDSetSize:   row.IDSetSize,
	}, nil
}

// buildAggregateQuery renders the fingerprint query for spec. Identifiers
// are checked against identPattern since they cannot be bound as parameters.
func buildAggregateQuery(spec types.ViewSpec) (string, error) {
	idents := append([]string{spec.Name, spec.SubjectColumn, spec.KeyColumn}, spec.DateColumns...)
	for _, id := range idents {
		if !identPattern.MatchString(id) {
			return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, id)
		}
	}

	latest := "NULL"
	switch len(spec.DateColumns) {
	case 0:
	case 1:
		latest = "MAX(" + spec.DateColumns[0] + ")"
	default:
		latest = "MAX(COALESCE(" + strings.Join(spec.DateColumns, ", ") + "))"
	}

	return fmt.Sprintf(
		"SELECT COUNT(*) AS record_count, CAST(%s AS VARCHAR(32)) AS latest_date, COUNT(DISTINCT %s) AS id_set_size FROM %s WHERE %s = ?",
		latest, spec.KeyColumn, spec.Name, spec.SubjectColumn,
	), nil
}
