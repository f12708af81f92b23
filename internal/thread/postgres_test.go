package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPostgresStore_Get(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer mockDB.Close()

	store := newPostgresStore(mockDB, "")
	ctx := context.Background()

	tests := []struct {
		name      string
		setup     func()
		wantFound bool
		wantErr   bool
	}{
		{
			name: "found",
			setup: func() {
				mock.ExpectQuery(`SELECT thread_handle FROM "threads" WHERE thread_key = \$1 AND expires_at > \$2`).
					WithArgs("k", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"thread_handle"}).AddRow("1718000000.000100"))
			},
			wantFound: true,
		},
		{
			name: "absent or expired",
			setup: func() {
				mock.ExpectQuery(`SELECT thread_handle FROM "threads"`).
					WithArgs("k", sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"thread_handle"}))
			},
		},
		{
			name: "database error",
			setup: func() {
				mock.ExpectQuery(`SELECT thread_handle FROM "threads"`).
					WithArgs("k", sqlmock.AnyArg()).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			handle, found, err := store.Get(ctx, "k")
			if (err != nil) != tt.wantErr {
				t.Errorf("Get() error = %v, wantErr %v", err, tt.wantErr)
			}
			if found != tt.wantFound {
				t.Errorf("Get() found = %v, want %v", found, tt.wantFound)
			}
			if found && handle != "1718000000.000100" {
				t.Errorf("Get() handle = %q", handle)
			}
		})
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_Put(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer mockDB.Close()

	store := newPostgresStore(mockDB, "slack_threads")
	now := time.Unix(1718000000, 0)
	store.now = func() time.Time { return now }

	mock.ExpectExec(`INSERT INTO "slack_threads" \(thread_key, thread_handle, expires_at\)`).
		WithArgs("k", "h", now.Add(15*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Put(context.Background(), "k", "h", 15*time.Minute); err != nil {
		t.Errorf("Put() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestPostgresStore_EnsureSchema(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock DB: %v", err)
	}
	defer mockDB.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "threads"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	store := newPostgresStore(mockDB, "")
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Errorf("EnsureSchema() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNewPostgresStore_InvalidDSN(t *testing.T) {
	if _, err := NewPostgresStore(context.Background(), "invalid-dsn", ""); err == nil {
		t.Error("NewPostgresStore() error = nil, want error")
	}
}
