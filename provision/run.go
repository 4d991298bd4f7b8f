package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// Conn is the subset of *pgx.Conn used by Run.
type Conn interface {
	TxBeginner
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Dialer opens a connection to dsn.
type Dialer func(ctx context.Context, dsn string) (Conn, error)

// DialPgx is the default Dialer.
func DialPgx(ctx context.Context, dsn string) (Conn, error) {
	c, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return c, nil
}

type runner struct {
	log     logrus.FieldLogger
	dial    Dialer
	maxWait time.Duration
	migrate bool
}

// Option configures Run.
type Option func(*runner)

// WithLogger sets the logger used for progress messages.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *runner) { r.log = log }
}

// WithDialer replaces the connection factory.
func WithDialer(d Dialer) Option {
	return func(r *runner) { r.dial = d }
}

// WithMaxWait bounds how long Run waits for the server to accept
// connections. Zero disables waiting: one failed attempt is final.
func WithMaxWait(d time.Duration) Option {
	return func(r *runner) { r.maxWait = d }
}

// WithMigrations also applies the table migrations after the grant, in a
// separate transaction.
func WithMigrations() Option {
	return func(r *runner) { r.migrate = true }
}

// Run connects to dsn, creates schema and grants user all privileges on it.
//
// Connection attempts are retried with exponential backoff until maxWait
// elapses, except for authentication and unknown-database errors which fail
// immediately. Once connected the plan is applied exactly once.
func Run(ctx context.Context, dsn, schema, user string, opts ...Option) error {
	r := &runner{
		log:     logrus.StandardLogger(),
		dial:    DialPgx,
		maxWait: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}

	stmts, err := Plan(schema, user)
	if err != nil {
		return err
	}

	conn, err := r.connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close(context.Background()) }()

	log := r.log.WithFields(logrus.Fields{"schema": schema, "user": user})
	if err := Apply(ctx, conn, stmts); err != nil {
		log.WithError(err).Error("schema provisioning failed")
		return err
	}
	log.Info("schema provisioned")

	if r.migrate {
		if err := Migrate(ctx, conn, schema); err != nil {
			log.WithError(err).Error("migrations failed")
			return err
		}
		log.Info("migrations applied")
	}
	return nil
}

func (r *runner) connect(ctx context.Context, dsn string) (Conn, error) {
	var conn Conn
	op := func() error {
		c, err := r.dial(ctx, dsn)
		if err != nil {
			if IsFatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := c.Ping(ctx); err != nil {
			_ = c.Close(ctx)
			if IsFatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if r.maxWait > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 250 * time.Millisecond
		eb.MaxInterval = 5 * time.Second
		eb.MaxElapsedTime = r.maxWait
		b = eb
	}

	notify := func(err error, wait time.Duration) {
		r.log.WithError(err).WithField("retry_in", wait.String()).Warn("database not ready")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}
