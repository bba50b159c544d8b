package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"famcal/internal/model"
)

const timestampLayout = time.RFC3339Nano

const seriesColumns = `id, family_id, kind, frequency, interval_value, weekdays,
	monthly_mode, month_day, weekday_ordinal, weekday, end_type, end_date, end_count,
	series_start, series_end, original_series_id, active,
	title, notes, points, assignees, time_of_day, duration_minutes, location, created_at`

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	if db == nil {
		return nil, errors.New("storage: nil db")
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func OpenSQLite(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo, err := NewSQLiteRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// DB exposes the underlying handle for migrations.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateSeries(ctx context.Context, in model.Series) error {
	return execInsertSeries(ctx, r.db, in)
}

func (r *SQLiteRepository) GetSeries(ctx context.Context, id string) (model.Series, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	out, err := scanSeries(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Series{}, ErrNotFound
		}
		return model.Series{}, err
	}
	return out, nil
}

func (r *SQLiteRepository) UpdateSeries(ctx context.Context, in model.Series) error {
	res, err := execUpdateSeries(ctx, r.db, in)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListSeries(ctx context.Context, filter SeriesFilter) ([]model.Series, error) {
	query := `SELECT ` + seriesColumns + ` FROM series`
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.FamilyID != "" {
		clauses = append(clauses, "family_id = ?")
		args = append(args, filter.FamilyID)
	}
	if filter.ActiveOnly {
		clauses = append(clauses, "active = 1")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY series_start ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Series, 0)
	for rows.Next() {
		item, scanErr := scanSeries(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// SplitSeries applies a this-and-following split atomically: the parent's
// shrunken end and the child's creation commit together or not at all.
func (r *SQLiteRepository) SplitSeries(ctx context.Context, parent, child model.Series) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin split: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := execUpdateSeries(ctx, tx, parent)
	if err != nil {
		return err
	}
	if err := checkRowsAffected(res); err != nil {
		return err
	}
	if err := execInsertSeries(ctx, tx, child); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRepository) UpsertException(ctx context.Context, in model.Exception) error {
	patch, err := marshalPatch(in.Patch)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recurrence_exceptions (series_id, exception_date, exception_type, override_data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (series_id, exception_date)
		DO UPDATE SET exception_type = excluded.exception_type,
		              override_data  = excluded.override_data,
		              created_at     = excluded.created_at`,
		in.SeriesID, model.ISODate(model.DateOf(in.Date)), in.Type, patch, mustTime(in.CreatedAt),
	)
	return err
}

func (r *SQLiteRepository) DeleteException(ctx context.Context, seriesID string, date time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM recurrence_exceptions WHERE series_id = ? AND exception_date = ?`,
		seriesID, model.ISODate(model.DateOf(date)),
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res)
}

func (r *SQLiteRepository) ListExceptions(ctx context.Context, seriesID string) ([]model.Exception, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT series_id, exception_date, exception_type, override_data, created_at
		FROM recurrence_exceptions WHERE series_id = ?
		ORDER BY exception_date ASC`, seriesID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Exception, 0)
	for rows.Next() {
		item, scanErr := scanException(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpsertOccurrence(ctx context.Context, in model.Instance) error {
	assignees, err := marshalStrings(in.Payload.Assignees)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO occurrences (id, series_id, family_id, kind, occurrence_date, starts_at, ends_at,
			title, notes, points, assignees, time_of_day, duration_minutes, location,
			is_exception, exception_type, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			occurrence_date = excluded.occurrence_date,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			title = excluded.title,
			notes = excluded.notes,
			points = excluded.points,
			assignees = excluded.assignees,
			time_of_day = excluded.time_of_day,
			duration_minutes = excluded.duration_minutes,
			location = excluded.location,
			is_exception = excluded.is_exception,
			exception_type = excluded.exception_type,
			generated_at = excluded.generated_at`,
		in.ID, in.SeriesID, in.FamilyID, in.Kind, model.ISODate(in.Date),
		mustTime(in.StartsAt), mustTime(in.EndsAt),
		in.Payload.Title, in.Payload.Notes, in.Payload.Points, assignees,
		in.Payload.TimeOfDay, in.Payload.DurationMinutes, in.Payload.Location,
		boolInt(in.IsException), string(in.ExceptionType), mustTime(time.Now().UTC()),
	)
	return err
}

func (r *SQLiteRepository) DeleteOccurrencesFrom(ctx context.Context, seriesID string, from time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM occurrences WHERE series_id = ? AND occurrence_date >= ?`,
		seriesID, model.ISODate(model.DateOf(from)),
	)
	return err
}

func (r *SQLiteRepository) ListOccurrences(ctx context.Context, filter OccurrenceFilter) ([]model.Instance, error) {
	query := `SELECT id, series_id, family_id, kind, occurrence_date, starts_at, ends_at,
		title, notes, points, assignees, time_of_day, duration_minutes, location,
		is_exception, exception_type FROM occurrences`
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)
	if filter.SeriesID != "" {
		clauses = append(clauses, "series_id = ?")
		args = append(args, filter.SeriesID)
	}
	if filter.FamilyID != "" {
		clauses = append(clauses, "family_id = ?")
		args = append(args, filter.FamilyID)
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, "occurrence_date >= ?")
		args = append(args, model.ISODate(model.DateOf(filter.From)))
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, "occurrence_date <= ?")
		args = append(args, model.ISODate(model.DateOf(filter.To)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY occurrence_date ASC, id ASC`
	query += applyPagination(&args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Instance, 0)
	for rows.Next() {
		item, scanErr := scanOccurrence(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execInsertSeries(ctx context.Context, db execer, in model.Series) error {
	assignees, err := marshalStrings(in.Payload.Assignees)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO series (`+seriesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.FamilyID, in.Kind,
		in.Rule.Frequency, in.Rule.Interval, encodeWeekdays(in.Rule.Weekdays),
		string(in.Rule.MonthlyMode), in.Rule.MonthDay, in.Rule.WeekdayOrdinal, int(in.Rule.Weekday),
		in.Rule.EndType, nullDate(in.Rule.EndDate), in.Rule.EndCount,
		model.ISODate(model.DateOf(in.Start)), nullDate(in.End), in.OriginalSeriesID, boolInt(in.Active),
		in.Payload.Title, in.Payload.Notes, in.Payload.Points, assignees,
		in.Payload.TimeOfDay, in.Payload.DurationMinutes, in.Payload.Location,
		mustTime(in.CreatedAt),
	)
	return err
}

func execUpdateSeries(ctx context.Context, db execer, in model.Series) (sql.Result, error) {
	assignees, err := marshalStrings(in.Payload.Assignees)
	if err != nil {
		return nil, err
	}
	return db.ExecContext(ctx, `
		UPDATE series SET
			family_id = ?, kind = ?,
			frequency = ?, interval_value = ?, weekdays = ?,
			monthly_mode = ?, month_day = ?, weekday_ordinal = ?, weekday = ?,
			end_type = ?, end_date = ?, end_count = ?,
			series_start = ?, series_end = ?, original_series_id = ?, active = ?,
			title = ?, notes = ?, points = ?, assignees = ?,
			time_of_day = ?, duration_minutes = ?, location = ?
		WHERE id = ?`,
		in.FamilyID, in.Kind,
		in.Rule.Frequency, in.Rule.Interval, encodeWeekdays(in.Rule.Weekdays),
		string(in.Rule.MonthlyMode), in.Rule.MonthDay, in.Rule.WeekdayOrdinal, int(in.Rule.Weekday),
		in.Rule.EndType, nullDate(in.Rule.EndDate), in.Rule.EndCount,
		model.ISODate(model.DateOf(in.Start)), nullDate(in.End), in.OriginalSeriesID, boolInt(in.Active),
		in.Payload.Title, in.Payload.Notes, in.Payload.Points, assignees,
		in.Payload.TimeOfDay, in.Payload.DurationMinutes, in.Payload.Location,
		in.ID,
	)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSeries(s scanner) (model.Series, error) {
	var out model.Series
	var frequency, monthlyMode, endType string
	var weekdays string
	var weekday int
	var endDate, seriesEnd sql.NullString
	var seriesStart, created string
	var active int
	var assignees string

	if err := s.Scan(
		&out.ID, &out.FamilyID, &out.Kind,
		&frequency, &out.Rule.Interval, &weekdays,
		&monthlyMode, &out.Rule.MonthDay, &out.Rule.WeekdayOrdinal, &weekday,
		&endType, &endDate, &out.Rule.EndCount,
		&seriesStart, &seriesEnd, &out.OriginalSeriesID, &active,
		&out.Payload.Title, &out.Payload.Notes, &out.Payload.Points, &assignees,
		&out.Payload.TimeOfDay, &out.Payload.DurationMinutes, &out.Payload.Location,
		&created,
	); err != nil {
		return model.Series{}, err
	}

	out.Rule.Frequency = model.Frequency(frequency)
	out.Rule.MonthlyMode = model.MonthlyMode(monthlyMode)
	out.Rule.Weekday = time.Weekday(weekday)
	out.Rule.EndType = model.EndType(endType)
	out.Active = active == 1

	wds, err := decodeWeekdays(weekdays)
	if err != nil {
		return model.Series{}, err
	}
	out.Rule.Weekdays = wds

	if out.Rule.EndDate, err = parseNullableDate(endDate); err != nil {
		return model.Series{}, err
	}
	if out.Start, err = parseDate(seriesStart); err != nil {
		return model.Series{}, err
	}
	if out.End, err = parseNullableDate(seriesEnd); err != nil {
		return model.Series{}, err
	}
	if out.CreatedAt, err = parseTime(created); err != nil {
		return model.Series{}, err
	}
	if err = json.Unmarshal([]byte(assignees), &out.Payload.Assignees); err != nil {
		return model.Series{}, fmt.Errorf("decode assignees: %w", err)
	}
	return out, nil
}

func scanException(s scanner) (model.Exception, error) {
	var out model.Exception
	var date, created string
	var patch sql.NullString
	if err := s.Scan(&out.SeriesID, &date, &out.Type, &patch, &created); err != nil {
		return model.Exception{}, err
	}
	d, err := parseDate(date)
	if err != nil {
		return model.Exception{}, err
	}
	out.Date = d
	if out.CreatedAt, err = parseTime(created); err != nil {
		return model.Exception{}, err
	}
	if patch.Valid && patch.String != "" {
		var p model.Patch
		if err := json.Unmarshal([]byte(patch.String), &p); err != nil {
			return model.Exception{}, fmt.Errorf("decode override data: %w", err)
		}
		out.Patch = &p
	}
	return out, nil
}

func scanOccurrence(s scanner) (model.Instance, error) {
	var out model.Instance
	var date, starts, ends string
	var assignees, exceptionType string
	var isException int
	if err := s.Scan(
		&out.ID, &out.SeriesID, &out.FamilyID, &out.Kind,
		&date, &starts, &ends,
		&out.Payload.Title, &out.Payload.Notes, &out.Payload.Points, &assignees,
		&out.Payload.TimeOfDay, &out.Payload.DurationMinutes, &out.Payload.Location,
		&isException, &exceptionType,
	); err != nil {
		return model.Instance{}, err
	}
	var err error
	if out.Date, err = parseDate(date); err != nil {
		return model.Instance{}, err
	}
	if out.StartsAt, err = parseTime(starts); err != nil {
		return model.Instance{}, err
	}
	if out.EndsAt, err = parseTime(ends); err != nil {
		return model.Instance{}, err
	}
	if err = json.Unmarshal([]byte(assignees), &out.Payload.Assignees); err != nil {
		return model.Instance{}, fmt.Errorf("decode assignees: %w", err)
	}
	out.IsException = isException == 1
	out.ExceptionType = model.ExceptionType(exceptionType)
	return out, nil
}

func encodeWeekdays(wds []time.Weekday) string {
	if len(wds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(wds))
	for _, wd := range wds {
		parts = append(parts, strconv.Itoa(int(wd)))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(v string) ([]time.Weekday, error) {
	if v == "" {
		return nil, nil
	}
	parts := strings.Split(v, ",")
	out := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("decode weekdays %q: %w", v, err)
		}
		out = append(out, time.Weekday(n))
	}
	return out, nil
}

func marshalStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode strings: %w", err)
	}
	return string(data), nil
}

func marshalPatch(p *model.Patch) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode override data: %w", err)
	}
	return string(data), nil
}

func nullDate(v *time.Time) any {
	if v == nil {
		return nil
	}
	return model.ISODate(model.DateOf(*v))
}

func mustTime(v time.Time) string {
	return v.UTC().Format(timestampLayout)
}

func parseDate(v string) (time.Time, error) {
	return time.ParseInLocation(model.ISODateLayout, v, time.UTC)
}

func parseNullableDate(v sql.NullString) (*time.Time, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := parseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseTime(v string) (time.Time, error) {
	return time.Parse(timestampLayout, v)
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func applyPagination(args *[]any, limit, offset int) string {
	clause := ""
	if limit > 0 {
		clause += " LIMIT ?"
		*args = append(*args, limit)
	}
	if offset > 0 {
		clause += " OFFSET ?"
		*args = append(*args, offset)
	}
	return clause
}

func checkRowsAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
