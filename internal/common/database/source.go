// internal/common/database/source.go
package database

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/models"
)

// Dialect selects the placeholder syntax of a SQL source.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)?$`)

// SourceTables names the checkout table and the optional member table.
type SourceTables struct {
	Checkouts string
	Members   string
}

// TimeRange bounds checkout_at as [From, To). Zero bounds are open.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// SnapshotSource reads a transaction snapshot from a SQL table with the
// columns country_code, phone_number, location, provider, checkout_at,
// service_item, checkout_kind and requested.
type SnapshotSource struct {
	db      *sql.DB
	dialect Dialect
	tables  SourceTables
	timeout time.Duration
}

func NewSnapshotSource(db *sql.DB, dialect Dialect, tables SourceTables, timeout time.Duration) (*SnapshotSource, error) {
	if !tableNamePattern.MatchString(tables.Checkouts) {
		return nil, fmt.Errorf("invalid checkout table name %q", tables.Checkouts)
	}
	if tables.Members != "" && !tableNamePattern.MatchString(tables.Members) {
		return nil, fmt.Errorf("invalid member table name %q", tables.Members)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SnapshotSource{db: db, dialect: dialect, tables: tables, timeout: timeout}, nil
}

// Name identifies the source in logs, metrics and error details.
func (s *SnapshotSource) Name() string { return string(s.dialect) }

func (s *SnapshotSource) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SnapshotSource) checkoutQuery(r TimeRange) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if !r.From.IsZero() {
		args = append(args, r.From.UTC())
		where = append(where, "checkout_at >= "+s.placeholder(len(args)))
	}
	if !r.To.IsZero() {
		args = append(args, r.To.UTC())
		where = append(where, "checkout_at < "+s.placeholder(len(args)))
	}

	q := "SELECT country_code, phone_number, location, provider, checkout_at, service_item, checkout_kind, requested FROM " + s.tables.Checkouts
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	return q + " ORDER BY checkout_at", args
}

// Load reads every checkout inside r plus the member table when one is
// configured. The returned snapshot declares all optional columns present.
func (s *SnapshotSource) Load(ctx context.Context, r TimeRange) (*models.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q, args := s.checkoutQuery(r)
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, s.wrapErr(ctx, err)
	}
	defer rows.Close()

	snap := &models.Snapshot{
		Columns: models.ColumnSet{Location: true, Provider: true, ServiceItem: true, Requested: true},
	}
	for rows.Next() {
		var (
			cc, phone, location, provider sql.NullString
			item, kind                    sql.NullString
			at                            sql.NullTime
			requested                     sql.NullBool
		)
		if err := rows.Scan(&cc, &phone, &location, &provider, &at, &item, &kind, &requested); err != nil {
			return nil, errors.NewSnapshotLoadFailedError(s.Name(), err)
		}
		row := models.RawTransaction{
			CountryCode:  cc.String,
			PhoneNumber:  phone.String,
			Location:     location.String,
			Provider:     provider.String,
			ServiceItem:  item.String,
			CheckoutKind: kind.String,
			SourceFile:   s.tables.Checkouts,
		}
		if at.Valid {
			row.CheckoutAt = at.Time.UTC()
		}
		if requested.Valid {
			v := requested.Bool
			row.Requested = &v
		}
		snap.Rows = append(snap.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapErr(ctx, err)
	}
	if len(snap.Rows) == 0 {
		return nil, errors.NewSnapshotEmptyError(s.Name())
	}

	if s.tables.Members != "" {
		members, err := s.loadMembers(ctx)
		if err != nil {
			return nil, err
		}
		snap.Members = members
	}
	return snap, nil
}

func (s *SnapshotSource) loadMembers(ctx context.Context) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT country_code, phone_number, name, visit_count FROM "+s.tables.Members)
	if err != nil {
		return nil, s.wrapErr(ctx, err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var (
			cc, phone, name sql.NullString
			visits          sql.NullInt64
		)
		if err := rows.Scan(&cc, &phone, &name, &visits); err != nil {
			return nil, errors.NewSnapshotLoadFailedError(s.Name(), err)
		}
		m := models.Member{CountryCode: cc.String, PhoneNumber: phone.String, Name: name.String}
		if visits.Valid {
			v := int(visits.Int64)
			m.VisitCount = &v
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrapErr(ctx, err)
	}
	return members, nil
}

func (s *SnapshotSource) wrapErr(ctx context.Context, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewQueryTimeoutError(s.Name())
	}
	return errors.NewSnapshotLoadFailedError(s.Name(), err)
}
