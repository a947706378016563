package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	names, err := Migrations()
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if len(names) == 0 || names[0] != "0001_client_state.sql" {
		t.Fatalf("unexpected migrations %v", names)
	}
}

func TestShouldRetryMigration(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("exec: %w", context.DeadlineExceeded), true},
		{"serialization", &pgconn.PgError{Code: "40001"}, true},
		{"syntax", &pgconn.PgError{Code: "42601"}, false},
		{"txClosed", pgx.ErrTxClosed, true},
		{"other", errors.New("boom"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldRetryMigration(tc.err); got != tc.want {
				t.Fatalf("shouldRetryMigration(%v) = %v want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestConnectRejectsMalformedURL(t *testing.T) {
	if _, err := Connect(context.Background(), "postgres://user@localhost:notaport/db"); err == nil {
		t.Fatal("expected malformed database url to be rejected")
	}
}
