package provision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeServer models the little catalog state provisioning touches: schemas,
// roles and schema grants. Changes become visible only on commit.
type fakeServer struct {
	mu      sync.Mutex
	roles   map[string]bool
	schemas map[string]int
	grants  map[string]int
	begins  int
}

func newFakeServer(roles ...string) *fakeServer {
	s := &fakeServer{
		roles:   make(map[string]bool),
		schemas: make(map[string]int),
		grants:  make(map[string]int),
	}
	for _, r := range roles {
		s.roles[r] = true
	}
	return s
}

func (s *fakeServer) Begin(context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	return &fakeTx{srv: s}, nil
}

type fakeTx struct {
	pgx.Tx
	srv        *fakeServer
	execs      []string
	newSchemas []string
	newGrants  []string
	committed  bool
	rolledBack bool
}

func unquote(s string) string {
	return strings.ReplaceAll(strings.Trim(s, `"`), `""`, `"`)
}

func (t *fakeTx) hasSchema(name string) bool {
	if t.srv.schemas[name] > 0 {
		return true
	}
	for _, n := range t.newSchemas {
		if n == name {
			return true
		}
	}
	return false
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	t.execs = append(t.execs, sql)

	f := strings.Fields(sql)
	switch {
	case strings.HasPrefix(sql, "CREATE SCHEMA IF NOT EXISTS "):
		name := unquote(f[5])
		if !t.hasSchema(name) {
			t.newSchemas = append(t.newSchemas, name)
		}
		return pgconn.NewCommandTag("CREATE SCHEMA"), nil
	case strings.HasPrefix(sql, "GRANT ALL ON SCHEMA "):
		schema, role := unquote(f[4]), unquote(f[6])
		if !t.srv.roles[role] {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: codeUndefinedObject, Message: `role "` + role + `" does not exist`}
		}
		if !t.hasSchema(schema) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "3F000", Message: `schema "` + schema + `" does not exist`}
		}
		t.newGrants = append(t.newGrants, schema+"/"+role)
		return pgconn.NewCommandTag("GRANT"), nil
	case strings.HasPrefix(sql, "FAIL"):
		return pgconn.CommandTag{}, errors.New("syntax error")
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.srv.mu.Lock()
	defer t.srv.mu.Unlock()
	for _, s := range t.newSchemas {
		t.srv.schemas[s]++
	}
	for _, g := range t.newGrants {
		t.srv.grants[g]++
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	t.newSchemas, t.newGrants = nil, nil
	return nil
}

// recordingDB hands out transactions from a fakeServer and remembers the last one.
type recordingDB struct {
	srv      *fakeServer
	last     *fakeTx
	beginErr error
}

func (d *recordingDB) Begin(ctx context.Context) (pgx.Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	tx, _ := d.srv.Begin(ctx)
	d.last = tx.(*fakeTx)
	return tx, nil
}

func TestPlan(t *testing.T) {
	t.Run("statements in order", func(t *testing.T) {
		stmts, err := Plan("ria", "app_user")
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		if len(stmts) != 2 {
			t.Fatalf("expected 2 statements, got %d", len(stmts))
		}
		if stmts[0].SQL != `CREATE SCHEMA IF NOT EXISTS "ria"` {
			t.Errorf("stmt[0] = %q", stmts[0].SQL)
		}
		if stmts[1].SQL != `GRANT ALL ON SCHEMA "ria" TO "app_user"` {
			t.Errorf("stmt[1] = %q", stmts[1].SQL)
		}
	})

	t.Run("quotes hostile identifiers", func(t *testing.T) {
		stmts, err := Plan("ria", `x"; DROP ROLE postgres; --`)
		if err != nil {
			t.Fatalf("Plan failed: %v", err)
		}
		want := `GRANT ALL ON SCHEMA "ria" TO "x""; DROP ROLE postgres; --"`
		if stmts[1].SQL != want {
			t.Errorf("stmt[1] = %q, want %q", stmts[1].SQL, want)
		}
	})

	t.Run("requires schema and user", func(t *testing.T) {
		if _, err := Plan("", "u"); !errors.Is(err, ErrInvalidPlan) {
			t.Errorf("empty schema: error = %v", err)
		}
		if _, err := Plan("ria", ""); !errors.Is(err, ErrInvalidPlan) {
			t.Errorf("empty user: error = %v", err)
		}
	})
}

func TestApply_Idempotent(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer("app")
	db := &recordingDB{srv: srv}

	stmts, _ := Plan("ria", "app")
	for i := 0; i < 2; i++ {
		if err := Apply(ctx, db, stmts); err != nil {
			t.Fatalf("run %d: Apply failed: %v", i+1, err)
		}
		if !db.last.committed {
			t.Fatalf("run %d: transaction not committed", i+1)
		}
	}

	if got := srv.schemas["ria"]; got != 1 {
		t.Errorf("schema count = %d, want exactly 1", got)
	}
	if got := srv.grants["ria/app"]; got != 2 {
		t.Errorf("grant applied %d times, want 2", got)
	}
}

func TestApply_UnknownRoleCreatesNoSchema(t *testing.T) {
	ctx := context.Background()
	srv := newFakeServer("app")
	db := &recordingDB{srv: srv}

	stmts, _ := Plan("ria", "intruder")
	err := Apply(ctx, db, stmts)
	if err == nil {
		t.Fatal("expected error for unknown role")
	}

	var stErr *StatementError
	if !errors.As(err, &stErr) {
		t.Fatalf("expected *StatementError, got %T", err)
	}
	if stErr.Index != 1 {
		t.Errorf("failing index = %d, want 1 (grant)", stErr.Index)
	}
	if !IsFatal(err) {
		t.Error("undefined role should be fatal")
	}
	if !db.last.rolledBack || db.last.committed {
		t.Error("expected rollback without commit")
	}
	if len(srv.schemas) != 0 {
		t.Errorf("schemas = %v, want none", srv.schemas)
	}
}

func TestApply_StopsAtFirstError(t *testing.T) {
	db := &recordingDB{srv: newFakeServer()}
	stmts := []Statement{
		{Name: "one", SQL: "SELECT 1"},
		{Name: "bad", SQL: "FAIL"},
		{Name: "three", SQL: "SELECT 3"},
	}

	err := Apply(context.Background(), db, stmts)
	var stErr *StatementError
	if !errors.As(err, &stErr) || stErr.Statement.Name != "bad" {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.last.execs) != 2 {
		t.Errorf("executed %d statements, want 2", len(db.last.execs))
	}
	if !strings.Contains(err.Error(), "statement 2 (bad)") {
		t.Errorf("error message = %q", err.Error())
	}
}

func TestApply_BeginError(t *testing.T) {
	db := &recordingDB{srv: newFakeServer(), beginErr: errors.New("conn closed")}
	stmts, _ := Plan("ria", "app")
	if err := Apply(context.Background(), db, stmts); err == nil {
		t.Fatal("expected begin error")
	}
}

func TestApply_Empty(t *testing.T) {
	db := &recordingDB{srv: newFakeServer()}
	if err := Apply(context.Background(), db, nil); err != nil {
		t.Fatalf("Apply(nil) = %v", err)
	}
	if db.srv.begins != 0 {
		t.Error("empty plan should not open a transaction")
	}
}

func TestIsFatal(t *testing.T) {
	if IsFatal(errors.New("boom")) {
		t.Error("plain error should not be fatal")
	}
	if !IsFatal(&pgconn.PgError{Code: codeInvalidPassword}) {
		t.Error("invalid password should be fatal")
	}
	if IsFatal(&pgconn.PgError{Code: "57P03"}) {
		t.Error("cannot_connect_now should be retryable")
	}
}

type fakeConn struct {
	*fakeServer
	pingErr error
	closed  bool
}

func (c *fakeConn) Ping(context.Context) error  { return c.pingErr }
func (c *fakeConn) Close(context.Context) error { c.closed = true; return nil }

func quietLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestRun(t *testing.T) {
	ctx := context.Background()

	t.Run("provisions and migrates", func(t *testing.T) {
		srv := newFakeServer("app")
		conn := &fakeConn{fakeServer: srv}
		dial := func(context.Context, string) (Conn, error) { return conn, nil }

		err := Run(ctx, "postgres://x", "ria", "app",
			WithDialer(dial), WithLogger(quietLogger()), WithMigrations())
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if srv.schemas["ria"] != 1 {
			t.Error("schema not created")
		}
		if srv.begins != 2 {
			t.Errorf("begins = %d, want 2 (provision + migrate)", srv.begins)
		}
		if !conn.closed {
			t.Error("connection not closed")
		}
	})

	t.Run("auth failure is not retried", func(t *testing.T) {
		calls := 0
		dial := func(context.Context, string) (Conn, error) {
			calls++
			return nil, &pgconn.PgError{Code: codeInvalidPassword, Message: "password authentication failed"}
		}

		err := Run(ctx, "postgres://x", "ria", "app",
			WithDialer(dial), WithLogger(quietLogger()), WithMaxWait(time.Minute))
		if err == nil {
			t.Fatal("expected error")
		}
		if calls != 1 {
			t.Errorf("dial called %d times, want 1", calls)
		}
	})

	t.Run("waits for server", func(t *testing.T) {
		srv := newFakeServer("app")
		calls := 0
		dial := func(context.Context, string) (Conn, error) {
			calls++
			if calls < 2 {
				return nil, errors.New("connection refused")
			}
			return &fakeConn{fakeServer: srv}, nil
		}

		err := Run(ctx, "postgres://x", "ria", "app",
			WithDialer(dial), WithLogger(quietLogger()), WithMaxWait(10*time.Second))
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		if calls != 2 {
			t.Errorf("dial called %d times, want 2", calls)
		}
	})

	t.Run("no wait gives up after one attempt", func(t *testing.T) {
		calls := 0
		dial := func(context.Context, string) (Conn, error) {
			calls++
			return nil, errors.New("connection refused")
		}
		err := Run(ctx, "postgres://x", "ria", "app",
			WithDialer(dial), WithLogger(quietLogger()), WithMaxWait(0))
		if err == nil || calls != 1 {
			t.Fatalf("err = %v, calls = %d", err, calls)
		}
	})

	t.Run("invalid plan fails before dialing", func(t *testing.T) {
		dial := func(context.Context, string) (Conn, error) {
			t.Fatal("dial should not be called")
			return nil, nil
		}
		if err := Run(ctx, "postgres://x", "ria", "", WithDialer(dial)); !errors.Is(err, ErrInvalidPlan) {
			t.Errorf("error = %v, want ErrInvalidPlan", err)
		}
	})
}

func TestMigrations(t *testing.T) {
	stmts, err := Migrations("ria")
	if err != nil {
		t.Fatalf("Migrations failed: %v", err)
	}
	if len(stmts) != 5 {
		t.Fatalf("expected 5 statements, got %d", len(stmts))
	}
	for _, st := range stmts {
		if !strings.Contains(st.SQL, "IF NOT EXISTS") {
			t.Errorf("%s is not idempotent: %s", st.Name, st.SQL)
		}
	}
	if !strings.Contains(stmts[2].SQL, `"ria"."scraped_jobs"`) {
		t.Errorf("scraped_jobs not schema qualified: %s", stmts[2].SQL)
	}
	if !strings.Contains(stmts[2].SQL, "url_hash CHAR(64) UNIQUE NOT NULL,") {
		t.Errorf("scraped_jobs column list malformed: %s", stmts[2].SQL)
	}

	if _, err := Migrations(""); !errors.Is(err, ErrInvalidPlan) {
		t.Errorf("empty schema: error = %v", err)
	}
}
