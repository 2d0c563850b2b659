package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/voice-booking-platform/internal/connections"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores appointments in the appointments table.
type PostgresRepository struct {
	db querier
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

func newPostgresRepositoryWithQuerier(db querier) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const appointmentColumns = `id, user_id, booking_reference, customer_name, customer_phone, customer_email,
	title, description, notes, start_time, end_time, timezone, status, cancellation_reason, cancelled_at,
	provider, external_event_id, calendar_synced_at, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, appt *Appointment) error {
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	query := `
		INSERT INTO appointments (
			id, user_id, booking_reference, customer_name, customer_phone, customer_email,
			title, description, notes, start_time, end_time, timezone, status,
			provider, external_event_id, calendar_synced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		appt.ID,
		appt.UserID,
		appt.BookingReference,
		appt.CustomerName,
		appt.CustomerPhone,
		nullString(appt.CustomerEmail),
		nullString(appt.Title),
		nullString(appt.Description),
		nullString(appt.Notes),
		appt.StartTime,
		appt.EndTime,
		appt.Timezone,
		string(appt.Status),
		nullString(string(appt.Provider)),
		nullString(appt.ExternalEventID),
		appt.CalendarSyncedAt,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateReference
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByReference(ctx context.Context, ref string) (*Appointment, error) {
	return r.getOne(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE booking_reference = $1`, ref)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Appointment, error) {
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) ReferenceExists(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE booking_reference = $1)`, ref).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("appointments: reference exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) CountCreatedInYear(ctx context.Context, year int) (int, error) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE created_at >= $1 AND created_at < $2`,
		start, start.AddDate(1, 0, 0),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("appointments: count year: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Update(ctx context.Context, appt *Appointment) error {
	query := `
		UPDATE appointments SET
			customer_name = $2, customer_phone = $3, customer_email = $4,
			title = $5, description = $6, notes = $7,
			start_time = $8, end_time = $9, timezone = $10, status = $11,
			cancellation_reason = $12, cancelled_at = $13,
			provider = $14, external_event_id = $15, calendar_synced_at = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		appt.ID,
		appt.CustomerName,
		appt.CustomerPhone,
		nullString(appt.CustomerEmail),
		nullString(appt.Title),
		nullString(appt.Description),
		nullString(appt.Notes),
		appt.StartTime,
		appt.EndTime,
		appt.Timezone,
		string(appt.Status),
		nullString(appt.CancellationReason),
		appt.CancelledAt,
		nullString(string(appt.Provider)),
		nullString(appt.ExternalEventID),
		appt.CalendarSyncedAt,
	).Scan(&appt.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("appointments: update: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Appointment, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if filter.UserID != "" {
		add("user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.From != nil {
		add("start_time >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("start_time <= $%d", *filter.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM appointments`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("appointments: count: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM appointments%s ORDER BY start_time ASC LIMIT $%d OFFSET $%d`,
		appointmentColumns, clause, len(args)-1, len(args))

	items, err := r.queryAll(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// FindOverlapping encodes the three-way overlap test (starts during, ends
// during, contains) as its equivalent start < end AND end > start.
func (r *PostgresRepository) FindOverlapping(ctx context.Context, userID string, start, end time.Time, excludeID string) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE user_id = $1
		  AND status IN ('SCHEDULED', 'CONFIRMED')
		  AND start_time < $3 AND end_time > $2
		  AND ($4 = '' OR id::text <> $4)
		ORDER BY start_time ASC`
	return r.queryAll(ctx, query, userID, start, end, excludeID)
}

func (r *PostgresRepository) ListLinked(ctx context.Context, userID string, provider connections.Provider) ([]*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE user_id = $1 AND provider = $2 AND external_event_id IS NOT NULL
		  AND status IN ('SCHEDULED', 'CONFIRMED')`
	return r.queryAll(ctx, query, userID, string(provider))
}

func (r *PostgresRepository) ExternalEventIDs(ctx context.Context, userID string, provider connections.Provider) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT external_event_id FROM appointments WHERE user_id = $1 AND provider = $2 AND external_event_id IS NOT NULL`,
		userID, string(provider))
	if err != nil {
		return nil, fmt.Errorf("appointments: external ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("appointments: scan external id: %w", err)
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CountByStatus(ctx context.Context, userID string, from, to *time.Time) (map[Status]int, error) {
	query := `SELECT status, COUNT(*) FROM appointments
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2::timestamptz IS NULL OR start_time >= $2)
		  AND ($3::timestamptz IS NULL OR start_time <= $3)
		GROUP BY status`
	rows, err := r.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: count by status: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("appointments: scan status count: %w", err)
		}
		out[Status(status)] = n
	}
	return out, rows.Err()
}

func (r *PostgresRepository) queryAll(ctx context.Context, query string, args ...any) ([]*Appointment, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: query: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a                                         Appointment
		email, title, desc, notes, reason, provID *string
		externalID                                *string
		status                                    string
	)
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.BookingReference,
		&a.CustomerName,
		&a.CustomerPhone,
		&email,
		&title,
		&desc,
		&notes,
		&a.StartTime,
		&a.EndTime,
		&a.Timezone,
		&status,
		&reason,
		&a.CancelledAt,
		&provID,
		&externalID,
		&a.CalendarSyncedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.CustomerEmail = deref(email)
	a.Title = deref(title)
	a.Description = deref(desc)
	a.Notes = deref(notes)
	a.CancellationReason = deref(reason)
	a.Provider = connections.Provider(deref(provID))
	a.ExternalEventID = deref(externalID)
	return &a, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
