package infra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestExtractMarker(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		marker  string
		body    string
		wantErr bool
	}{
		{
			name:   "valid",
			query:  "\n--sql 3f1c8a52-9f0e-4b8d-a4a5-0f2f8c1d9e70\nSELECT 1\n",
			marker: "3f1c8a52-9f0e-4b8d-a4a5-0f2f8c1d9e70",
			body:   "SELECT 1",
		},
		{name: "missing", query: "SELECT 1", wantErr: true},
		{name: "uppercase uuid", query: "--sql 3F1C8A52-9F0E-4B8D-A4A5-0F2F8C1D9E70\nSELECT 1", wantErr: true},
		{name: "empty", query: "   ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			marker, body, err := extractMarker(tc.query)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.query)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if marker != tc.marker || body != tc.body {
				t.Fatalf("got (%q, %q)", marker, body)
			}
		})
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(fmt.Errorf("get project: %w", pgx.ErrNoRows)) {
		t.Fatal("wrapped ErrNoRows not detected")
	}
	if IsNoRows(errors.New("boom")) {
		t.Fatal("unrelated error reported as no rows")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "donations_transaction_id_key"})
	if !IsUniqueViolation(err, "") {
		t.Fatal("expected unique violation")
	}
	if !IsUniqueViolation(err, "donations_transaction_id_key") {
		t.Fatal("expected match on constraint name")
	}
	if IsUniqueViolation(err, "other") {
		t.Fatal("constraint name should not match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
}
