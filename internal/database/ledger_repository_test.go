package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/skehlet/dailymail/internal/database"
)

var ledgerColumns = []string{"source_url", "entry_id", "seen_at"}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newLedgerRepo(t *testing.T, sweep database.SweepConfig) (*database.LedgerRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	repo := database.NewLedgerRepository(sqlx.NewDb(mockDB, "postgres"), sweep)
	repo.SetClock(func() time.Time { return fixedNow })

	return repo, mock
}

func expectationsMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet sqlmock expectations: %v", err)
	}
}

func TestLedgerRepository_IsProcessed(t *testing.T) {
	t.Parallel()

	repo, mock := newLedgerRepo(t, database.SweepConfig{})

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("https://example.com/rss", "guid-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	seen, err := repo.IsProcessed(context.Background(), "https://example.com/rss", "guid-1")
	if err != nil {
		t.Fatalf("IsProcessed() error = %v", err)
	}
	if !seen {
		t.Error("expected entry to be processed")
	}

	expectationsMet(t, mock)
}

func TestLedgerRepository_IsProcessed_StoreError(t *testing.T) {
	t.Parallel()

	repo, mock := newLedgerRepo(t, database.SweepConfig{})

	mock.ExpectQuery("SELECT EXISTS").WillReturnError(errors.New("connection reset by peer"))

	_, err := repo.IsProcessed(context.Background(), "https://example.com/rss", "guid-1")

	var storeErr *database.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if storeErr.Op != "check processed entry" {
		t.Errorf("unexpected op %q", storeErr.Op)
	}
}

func TestLedgerRepository_MarkProcessed_Upserts(t *testing.T) {
	t.Parallel()

	repo, mock := newLedgerRepo(t, database.SweepConfig{})

	for range 2 {
		mock.ExpectExec("INSERT INTO processed_entries .+ ON CONFLICT \\(source_url, entry_id\\) DO UPDATE").
			WithArgs("https://example.com/rss", "guid-1", fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	ctx := context.Background()
	for range 2 {
		if err := repo.MarkProcessed(ctx, "https://example.com/rss", "guid-1"); err != nil {
			t.Fatalf("MarkProcessed() error = %v", err)
		}
	}

	expectationsMet(t, mock)
}

func TestLedgerRepository_SweepExpired_DeletesOnlyOlderThanCutoff(t *testing.T) {
	t.Parallel()

	repo, mock := newLedgerRepo(t, database.SweepConfig{PageSize: 10, BatchSize: 2})
	retention := 90 * 24 * time.Hour
	cutoff := fixedNow.Add(-retention)

	old1 := cutoff.Add(-48 * time.Hour)
	old2 := cutoff.Add(-24 * time.Hour)
	old3 := cutoff.Add(-time.Minute)

	// Rows newer than the cutoff never match the seen_at < $1 filter, so the
	// only rows the sweep can see are the expired ones.
	mock.ExpectQuery("SELECT source_url, entry_id, seen_at FROM processed_entries\\s+WHERE seen_at < \\$1").
		WithArgs(cutoff, 10).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).
			AddRow("https://a.example/rss", "a-1", old1).
			AddRow("https://a.example/rss", "a-2", old2).
			AddRow("https://b.example/rss", "b-1", old3))

	mock.ExpectExec("DELETE FROM processed_entries WHERE \\(source_url, entry_id\\) IN").
		WithArgs("https://a.example/rss", "a-1", "https://a.example/rss", "a-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM processed_entries WHERE \\(source_url, entry_id\\) IN").
		WithArgs("https://b.example/rss", "b-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.SweepExpired(context.Background(), retention)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	expectationsMet(t, mock)
}

func TestLedgerRepository_SweepExpired_PagesUntilShortPage(t *testing.T) {
	t.Parallel()

	repo, mock := newLedgerRepo(t, database.SweepConfig{PageSize: 2, BatchSize: 25})
	cutoff := fixedNow.Add(-time.Hour)
	old := cutoff.Add(-time.Hour)

	mock.ExpectQuery("SELECT source_url, entry_id, seen_at FROM processed_entries").
		WithArgs(cutoff, 2).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).
			AddRow("u", "1", old).
			AddRow("u", "2", old))
	mock.ExpectExec("DELETE FROM processed_entries").
		WithArgs("u", "1", "u", "2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT source_url, entry_id, seen_at FROM processed_entries").
		WithArgs(cutoff, 2).
		WillReturnRows(sqlmock.NewRows(ledgerColumns).AddRow("u", "3", old))
	mock.ExpectExec("DELETE FROM processed_entries").
		WithArgs("u", "3").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.SweepExpired(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	expectationsMet(t, mock)
}

func TestLedgerRepository_SweepExpired_NothingExpired(t *testing.T) {
	t.Parallel()

	repo, mock := newLedgerRepo(t, database.SweepConfig{})

	mock.ExpectQuery("SELECT source_url, entry_id, seen_at FROM processed_entries").
		WillReturnRows(sqlmock.NewRows(ledgerColumns))

	deleted, err := repo.SweepExpired(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired() error = %v", err)
	}
	if deleted != 0 {
		t.Errorf("expected 0 deleted, got %d", deleted)
	}

	expectationsMet(t, mock)
}

func TestLedgerRepository_SweepExpired_DeleteFailureReportsPartialCount(t *testing.T) {
	t.Parallel()

	repo, mock := newLedgerRepo(t, database.SweepConfig{PageSize: 10, BatchSize: 1})
	old := fixedNow.Add(-48 * time.Hour)

	mock.ExpectQuery("SELECT source_url, entry_id, seen_at FROM processed_entries").
		WillReturnRows(sqlmock.NewRows(ledgerColumns).AddRow("u", "1", old).AddRow("u", "2", old))
	mock.ExpectExec("DELETE FROM processed_entries").
		WithArgs("u", "1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM processed_entries").
		WithArgs("u", "2").
		WillReturnError(errors.New("too many connections"))

	deleted, err := repo.SweepExpired(context.Background(), time.Hour)
	if !database.IsStoreError(err) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted before failure, got %d", deleted)
	}
}

func TestLedgerRepository_SweepExpired_RejectsNonPositiveRetention(t *testing.T) {
	t.Parallel()

	repo, _ := newLedgerRepo(t, database.SweepConfig{})
	if _, err := repo.SweepExpired(context.Background(), 0); err == nil {
		t.Error("expected error for zero retention")
	}
}
