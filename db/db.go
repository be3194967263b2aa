// Package db dials PostgreSQL endpoints with transient-failure retry and
// optional statement tracing through the application logger.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pgshift/pgshift/retry"
)

// Connector opens connections for one invocation. All connections share the
// retry executor and the debug setting.
type Connector struct {
	log   *zap.Logger
	exec  *retry.Executor
	debug bool
}

func NewConnector(log *zap.Logger, exec *retry.Executor, debug bool) *Connector {
	return &Connector{log: log.Named("db"), exec: exec, debug: debug}
}

// Connect dials url, retrying failures the connect policy classifies as
// transient. With debug on, every statement is traced to the logger.
func (c *Connector) Connect(ctx context.Context, url string) (*pgx.Conn, error) {
	cnf, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if c.debug {
		cnf.Tracer = &tracelog.TraceLog{
			Logger:   tracelog.LoggerFunc(c.trace),
			LogLevel: tracelog.LogLevelInfo,
		}
	}

	var conn *pgx.Conn
	err = c.exec.Do(retry.ConnectPolicy(), func() error {
		var err error
		conn, err = pgx.ConnectConfig(ctx, cnf)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return conn, nil
}

// trace forwards pgx trace events to zap. Prepare events carry no information
// the following Query event does not repeat.
func (c *Connector) trace(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	if msg == "Prepare" {
		return
	}
	fields := make([]zapcore.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := c.log.Check(zapLevel(level), msg); ce != nil {
		ce.Write(fields...)
	}
}

func zapLevel(level tracelog.LogLevel) zapcore.Level {
	switch level {
	case tracelog.LogLevelError:
		return zapcore.ErrorLevel
	case tracelog.LogLevelWarn:
		return zapcore.WarnLevel
	case tracelog.LogLevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
