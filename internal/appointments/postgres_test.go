package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var testColumns = []string{
	"id", "user_id", "booking_reference", "customer_name", "customer_phone", "customer_email",
	"title", "description", "notes", "start_time", "end_time", "timezone", "status", "cancellation_reason", "cancelled_at",
	"provider", "external_event_id", "calendar_synced_at", "created_at", "updated_at",
}

func anyArgs(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = pgxmock.AnyArg()
	}
	return out
}

func TestPostgresCreateMapsUniqueViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(anyArgs(16)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_booking_reference_key"})

	err = repo.Create(context.Background(), &Appointment{
		UserID: "user-1", BookingReference: "BK-2025-000001", CustomerName: "Jane", CustomerPhone: "+1",
		StartTime: time.Now(), EndTime: time.Now().Add(time.Hour), Timezone: "UTC", Status: StatusScheduled,
	})
	if !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCreateReturnsTimestamps(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)
	created := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(anyArgs(16)...).
		WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))

	appt := &Appointment{UserID: "user-1", BookingReference: "BK-2025-000002", Status: StatusScheduled}
	if err := repo.Create(context.Background(), appt); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if appt.ID == "" || !appt.CreatedAt.Equal(created) {
		t.Fatalf("unexpected appointment: %#v", appt)
	}
}

func TestPostgresFindOverlapping(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	nilString := (*string)(nil)
	provider := "GOOGLE"
	eventID := "g-1"
	rows := mock.NewRows(testColumns).AddRow(
		"appt-1", "user-1", "BK-2025-000001", "Jane", "+1", nilString,
		nilString, nilString, nilString, start.Add(30*time.Minute), end.Add(30*time.Minute), "UTC", "SCHEDULED", nilString, (*time.Time)(nil),
		&provider, &eventID, (*time.Time)(nil), start, start,
	)
	mock.ExpectQuery("status IN \\('SCHEDULED', 'CONFIRMED'\\)").
		WithArgs("user-1", start, end, "appt-9").
		WillReturnRows(rows)

	got, err := repo.FindOverlapping(context.Background(), "user-1", start, end, "appt-9")
	if err != nil {
		t.Fatalf("find overlapping failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one conflict, got %d", len(got))
	}
	if got[0].Provider != "GOOGLE" || got[0].ExternalEventID != "g-1" || !got[0].Linked() {
		t.Fatalf("linkage not scanned: %#v", got[0])
	}
	if got[0].CustomerEmail != "" || got[0].CancelledAt != nil {
		t.Fatalf("null columns not mapped to zero values: %#v", got[0])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresDeleteAndUpdateMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectExec("DELETE FROM appointments").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mock.ExpectQuery("UPDATE appointments SET").
		WithArgs(anyArgs(16)...).
		WillReturnRows(mock.NewRows([]string{"updated_at"}))
	if err := repo.Update(context.Background(), &Appointment{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresCountByStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()
	repo := newPostgresRepositoryWithQuerier(mock)

	mock.ExpectQuery("GROUP BY status").
		WithArgs("", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"status", "count"}).
			AddRow("SCHEDULED", 3).
			AddRow("CANCELLED", 1))

	counts, err := repo.CountByStatus(context.Background(), "", nil, nil)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if counts[StatusScheduled] != 3 || counts[StatusCancelled] != 1 || counts[StatusConfirmed] != 0 {
		t.Fatalf("unexpected counts: %#v", counts)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
