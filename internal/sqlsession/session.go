package sqlsession

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Config describes how to open a session.
type Config struct {
	// Path is the database file. Empty means a private in-memory database.
	Path string

	// ReadOnly opens the database without write access. Serving in
	// read-only mode fails writes inside endpoint SQL as well.
	ReadOnly bool

	// Extensions lists engine extensions requested by the site config.
	// The embedded engine compiles its extensions in; unknown names are
	// logged and skipped.
	Extensions []string
}

// Builtin extensions that ship compiled into the engine.
var builtinExtensions = map[string]bool{
	"json": true,
	"fts5": true,
	"math": true,
	"rtree": true,
}

// paramRefPattern finds $name placeholders in endpoint SQL.
var paramRefPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Rows is an executed statement's result: ordered columns and one record
// per row.
type Rows struct {
	Columns []string
	Values  [][]interface{}
}

// Session wraps one embedded database connection plus the secrets bound
// to it. Sessions are replaced as a whole during reload; a request holds
// its session reference for the duration of the call. Access to the
// single pinned connection is serialized with a mutex, which is the
// engine's own constraint for writes.
type Session struct {
	db       *sql.DB
	conn     *sql.Conn
	mu       sync.Mutex
	secrets  map[string]string
	readOnly bool
	logger   *zap.Logger
	closed   bool
}

// Open opens the embedded database, loads requested extensions, and
// installs secrets so SQL can read them from the session_secrets relation.
func Open(ctx context.Context, cfg Config, secrets map[string]string, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dsn := ":memory:"
	if cfg.Path != "" {
		dsn = "file:" + cfg.Path
		if cfg.ReadOnly {
			dsn += "?mode=ro"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Temp tables are connection-scoped, so the session pins one
	// connection for its whole lifetime.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	for _, ext := range cfg.Extensions {
		if !builtinExtensions[strings.ToLower(ext)] {
			logger.Warn("ignoring unknown engine extension", zap.String("extension", ext))
		}
	}

	s := &Session{
		db:       db,
		conn:     conn,
		secrets:  make(map[string]string, len(secrets)),
		readOnly: cfg.ReadOnly,
		logger:   logger,
	}
	if err := s.installSecrets(ctx, secrets); err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("SQL session opened",
		zap.String("path", cfg.Path),
		zap.Bool("read_only", cfg.ReadOnly),
		zap.Int("secrets", len(secrets)))
	return s, nil
}

// installSecrets publishes secrets into the connection-scoped
// session_secrets temp table so endpoint SQL can join against it.
func (s *Session) installSecrets(ctx context.Context, secrets map[string]string) error {
	if _, err := s.conn.ExecContext(ctx,
		`CREATE TEMP TABLE IF NOT EXISTS session_secrets (name TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create secrets relation: %w", err)
	}
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM session_secrets`); err != nil {
		return fmt.Errorf("failed to reset secrets relation: %w", err)
	}
	for name, value := range secrets {
		if _, err := s.conn.ExecContext(ctx,
			`INSERT INTO session_secrets (name, value) VALUES ($name, $value)`,
			sql.Named("name", name), sql.Named("value", value)); err != nil {
			return fmt.Errorf("failed to install secret %s: %w", name, err)
		}
		s.secrets[name] = value
	}
	return nil
}

// Execute runs one statement with $name placeholders bound by name from
// params. Only parameters actually referenced by the statement are bound.
func (s *Session) Execute(ctx context.Context, code string, params map[string]interface{}) (*Rows, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("session is closed")
	}

	args := bindArgs(code, params)
	rows, err := s.conn.QueryContext(ctx, code, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	result := &Rows{Columns: columns}
	for rows.Next() {
		scan := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range scan {
			ptrs[i] = &scan[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range scan {
			if b, ok := v.([]byte); ok {
				scan[i] = string(b)
			}
		}
		result.Values = append(result.Values, scan)
	}
	return result, rows.Err()
}

// bindArgs converts params into named driver arguments, restricted to the
// placeholders present in code. Typed values coerce to what the driver
// accepts: durations bind as nanoseconds, composites as JSON text.
func bindArgs(code string, params map[string]interface{}) []interface{} {
	referenced := make(map[string]bool)
	for _, m := range paramRefPattern.FindAllStringSubmatch(code, -1) {
		referenced[m[1]] = true
	}

	var args []interface{}
	for name, value := range params {
		if !referenced[name] {
			continue
		}
		args = append(args, sql.Named(name, driverValue(value)))
	}
	return args
}

func driverValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Duration:
		return int64(v)
	case time.Time, nil, string, bool, int, int64, float64, []byte:
		return v
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return v
	}
}

// Secret returns a bound secret by name.
func (s *Session) Secret(name string) (string, bool) {
	v, ok := s.secrets[name]
	return v, ok
}

// SecretNames returns the names of bound secrets, for the status surface.
// Values are never exposed here.
func (s *Session) SecretNames() []string {
	names := make([]string, 0, len(s.secrets))
	for name := range s.secrets {
		names = append(names, name)
	}
	return names
}

// ReadOnly reports whether the session was opened without write access.
func (s *Session) ReadOnly() bool {
	return s.readOnly
}

// Tables lists user tables, backing the built-in list_tables helper.
func (s *Session) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.Execute(ctx,
		`SELECT name FROM sqlite_schema WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`, nil)
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(rows.Values))
	for _, rec := range rows.Values {
		if name, ok := rec[0].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

// Close releases the pinned connection and the database handle.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn != nil {
		s.conn.Close()
	}
	return s.db.Close()
}
