package db

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// NewTestDB creates a new in-memory SQLite database for testing
func NewTestDB(t *testing.T) (*sql.DB, Store) {
	t.Helper()

	// Each test gets its own shared-cache database so connections within a
	// test see the same data without tests bleeding into each other.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", t.Name())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Set connection pool to 1 for consistent testing
	db.SetMaxOpenConns(1)

	store := NewStoreFromDB(db)
	if _, err = db.ExecContext(context.Background(), ddl); err != nil {
		db.Close()
		t.Fatalf("failed to setup database schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db, store
}

// SeedTestNode creates a test node in the database
func SeedTestNode(t *testing.T, store Store, params UpsertNodeParams) Node {
	t.Helper()

	node, err := store.UpsertNode(context.Background(), params)
	if err != nil {
		t.Fatalf("failed to seed test node: %v", err)
	}

	return node
}

// SeedTestAccount creates a test account in the database
func SeedTestAccount(t *testing.T, store Store, params CreateAccountParams) Account {
	t.Helper()

	account, err := store.CreateAccount(context.Background(), params)
	if err != nil {
		t.Fatalf("failed to seed test account: %v", err)
	}

	return account
}
