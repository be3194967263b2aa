// Package replication sets up PostgreSQL logical replication so changes keep
// flowing from source to target after the initial copy.
package replication

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/pgshift/pgshift/scope"
)

const (
	// DefaultPublication and DefaultSubscription are the name templates; with
	// more than one database the database name is appended to avoid clashes.
	DefaultPublication  = "pgshift_pub"
	DefaultSubscription = "pgshift_sub"

	syncPollInterval = 2 * time.Second
)

// ObjectName builds a publication or subscription name for one database.
func ObjectName(template, db string, multipleDatabases bool) string {
	if !multipleDatabases {
		return template
	}
	return template + "_" + db
}

// Setup manages publications and subscriptions for one database pair.
type Setup struct {
	log *zap.Logger
}

func NewSetup(log *zap.Logger) *Setup {
	return &Setup{log: log.Named("replication")}
}

// CreatePublication creates a publication on the source database. An empty
// table list publishes all tables; otherwise only the given tables are
// published (filtered scope must not leak unrelated tables to the target).
func (s *Setup) CreatePublication(ctx context.Context, conn *pgx.Conn, name string, tables []scope.QualifiedTable) error {
	var query string
	if len(tables) == 0 {
		query = fmt.Sprintf("CREATE PUBLICATION %s FOR ALL TABLES", quoteIdent(name))
	} else {
		names := make([]string, 0, len(tables))
		for _, t := range tables {
			names = append(names, t.QualifiedName())
		}
		query = fmt.Sprintf("CREATE PUBLICATION %s FOR TABLE %s", quoteIdent(name), strings.Join(names, ", "))
	}

	if _, err := conn.Exec(ctx, query); err != nil {
		if isDuplicate(err) {
			s.log.Info("publication already exists", zap.String("publication", name))
			return nil
		}
		return fmt.Errorf("create publication %q: %w", name, err)
	}
	s.log.Info("publication created", zap.String("publication", name), zap.Int("tables", len(tables)))
	return nil
}

// CreateSubscription creates a subscription on the target database pointing
// at the source publication.
func (s *Setup) CreateSubscription(ctx context.Context, conn *pgx.Conn, name, sourceURL, publication string) error {
	query := fmt.Sprintf(
		"CREATE SUBSCRIPTION %s CONNECTION '%s' PUBLICATION %s",
		quoteIdent(name),
		strings.ReplaceAll(sourceURL, "'", "''"),
		quoteIdent(publication),
	)

	if _, err := conn.Exec(ctx, query); err != nil {
		if isDuplicate(err) {
			s.log.Info("subscription already exists", zap.String("subscription", name))
			return nil
		}
		return fmt.Errorf("create subscription %q: %w", name, err)
	}
	s.log.Info("subscription created", zap.String("subscription", name))
	return nil
}

const pendingRelationsQuery = `
SELECT count(*)
FROM pg_subscription_rel sr
JOIN pg_subscription s ON s.oid = sr.srsubid
WHERE s.subname = $1
  AND sr.srsubstate <> 'r'
`

// WaitForSync polls until every relation of the subscription reaches the
// ready state or the timeout elapses.
func (s *Setup) WaitForSync(ctx context.Context, conn *pgx.Conn, name string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var pending int
		if err := conn.QueryRow(ctx, pendingRelationsQuery, name).Scan(&pending); err != nil {
			return fmt.Errorf("query sync state of %q: %w", name, err)
		}
		if pending == 0 {
			s.log.Info("initial sync complete", zap.String("subscription", name))
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("subscription %q: %d relations still syncing after %s", name, pending, timeout)
		}
		s.log.Debug("waiting for initial sync",
			zap.String("subscription", name),
			zap.Int("pending", pending),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(syncPollInterval):
		}
	}
}

// DropPublication removes a publication if it exists.
func (s *Setup) DropPublication(ctx context.Context, conn *pgx.Conn, name string) error {
	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP PUBLICATION IF EXISTS %s", quoteIdent(name))); err != nil {
		return fmt.Errorf("drop publication %q: %w", name, err)
	}
	return nil
}

// DropSubscription removes a subscription if it exists.
func (s *Setup) DropSubscription(ctx context.Context, conn *pgx.Conn, name string) error {
	if _, err := conn.Exec(ctx, fmt.Sprintf("DROP SUBSCRIPTION IF EXISTS %s", quoteIdent(name))); err != nil {
		return fmt.Errorf("drop subscription %q: %w", name, err)
	}
	return nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 42710 duplicate_object
		return pgErr.Code == "42710"
	}
	return false
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
