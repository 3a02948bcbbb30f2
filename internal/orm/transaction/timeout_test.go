package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/conduit-lang/orm/internal/orm/sqlexec"
)

func TestWithTimeout_Completes(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	err := mgr.WithTimeout(context.Background(), time.Second, func(ctx context.Context, tx *sqlexec.Tx) error {
		_, err := tx.Execute(ctx, "INSERT INTO test_records (name) VALUES (?)", "fast")
		return err
	})
	if err != nil {
		t.Fatalf("WithTimeout failed: %v", err)
	}
	if n := countRecords(t, db); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestWithTimeout_Exceeded(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	err := mgr.WithTimeout(context.Background(), 10*time.Millisecond, func(ctx context.Context, tx *sqlexec.Tx) error {
		if _, err := tx.Execute(ctx, "INSERT INTO test_records (name) VALUES (?)", "slow"); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrTransactionTimeout) {
		t.Fatalf("expected ErrTransactionTimeout, got %v", err)
	}
	if n := countRecords(t, db); n != 0 {
		t.Errorf("expected timed out transaction to roll back, got %d records", n)
	}
}

func TestWithTimeout_ErrorBeforeDeadline(t *testing.T) {
	db := setupTestDB(t)
	mgr := NewManager(db, nil)

	boom := errors.New("boom")
	err := mgr.WithTimeout(context.Background(), time.Second, func(ctx context.Context, tx *sqlexec.Tx) error {
		return boom
	})
	if !errors.Is(err, boom) || errors.Is(err, ErrTransactionTimeout) {
		t.Errorf("expected plain boom, got %v", err)
	}
}
