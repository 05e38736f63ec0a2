package db

import (
	"testing"

	"github.com/gocql/gocql"

	"github.com/acme/lead-contact-engine/internal/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	got := DSN(config.PostgresConfig{Host: "db", User: "engine", Password: "p@ss/word", Database: "leads"})
	want := "postgres://engine:p%40ss%2Fword@db:5432/leads?sslmode=disable"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestParseConsistency(t *testing.T) {
	cases := map[string]gocql.Consistency{
		"":             gocql.Quorum,
		"LOCAL_QUORUM": gocql.LocalQuorum,
		"one":          gocql.One,
		"bogus":        gocql.Quorum,
	}
	for in, want := range cases {
		if got := ParseConsistency(in); got != want {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
}
