package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func TestScheduleRepository_WorksOn_DefaultsTrueWhenNoRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT works FROM practitioner_schedule`).
		WithArgs("prac-1", "biz-1", int(date.Weekday())).
		WillReturnError(pgx.ErrNoRows)

	repo := &ScheduleRepository{db: mock}
	works, err := repo.WorksOn(context.Background(), "clinic-1", "prac-1", "biz-1", date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !works {
		t.Fatal("expected default to be true when no schedule row exists")
	}
}

func TestScheduleRepository_WorksOn_RespectsExplicitFalse(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	date := time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT works FROM practitioner_schedule`).
		WithArgs("prac-1", "biz-1", int(date.Weekday())).
		WillReturnRows(pgxmock.NewRows([]string{"works"}).AddRow(false))

	repo := &ScheduleRepository{db: mock}
	works, err := repo.WorksOn(context.Background(), "clinic-1", "prac-1", "biz-1", date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if works {
		t.Fatal("expected explicit false row to suppress the triple")
	}
}

func TestScheduleRepository_IsRejected_DegradesToFalseOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	slotStart := time.Date(2025, 7, 16, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT 1 FROM session_rejected_slots`).
		WillReturnError(context.DeadlineExceeded)

	repo := &ScheduleRepository{db: mock}
	if repo.IsRejected(context.Background(), "session-1", "prac-1", "biz-1", slotStart) {
		t.Fatal("expected a lookup failure to degrade to not-rejected")
	}
}

func TestScheduleRepository_IsRejected_True(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("new mock pool: %v", err)
	}
	defer mock.Close()

	slotStart := time.Date(2025, 7, 16, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT 1 FROM session_rejected_slots`).
		WillReturnRows(pgxmock.NewRows([]string{"1"}).AddRow(1))

	repo := &ScheduleRepository{db: mock}
	if !repo.IsRejected(context.Background(), "session-1", "prac-1", "biz-1", slotStart) {
		t.Fatal("expected true for a recorded rejection")
	}
}
