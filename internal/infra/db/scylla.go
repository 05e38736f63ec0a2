package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/gocql/gocql"

	"github.com/acme/lead-contact-engine/internal/config"
)

var consistencies = map[string]gocql.Consistency{
	"one":          gocql.One,
	"quorum":       gocql.Quorum,
	"local_quorum": gocql.LocalQuorum,
	"local_one":    gocql.LocalOne,
	"each_quorum":  gocql.EachQuorum,
}

// Scylla wraps the gocql session backing the attempt history.
type Scylla struct {
	session *gocql.Session
}

// NewScylla creates a new Scylla session.
func NewScylla(cfg config.ScyllaConfig) (*Scylla, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = ParseConsistency(cfg.Consistency)
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
	}
	cluster.RetryPolicy = &gocql.SimpleRetryPolicy{NumRetries: 3}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("scylla: create session: %w", err)
	}

	return &Scylla{session: session}, nil
}

// Session exposes the gocql session.
func (s *Scylla) Session() *gocql.Session {
	return s.session
}

// Ping runs a trivial query against the local node.
func (s *Scylla) Ping(ctx context.Context) error {
	return s.session.Query("SELECT now() FROM system.local").WithContext(ctx).Exec()
}

// Close shuts down the session.
func (s *Scylla) Close() error {
	if s.session != nil {
		s.session.Close()
	}
	return nil
}

// ParseConsistency maps a configured level to gocql, defaulting to quorum.
func ParseConsistency(level string) gocql.Consistency {
	if c, ok := consistencies[strings.ToLower(strings.TrimSpace(level))]; ok {
		return c
	}
	return gocql.Quorum
}
