package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/pressly/goose/v3"

	"github.com/comigor/panda-go/internal/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore persists the conversation in a SQLite database.
type SQLiteStore struct {
	writeMu sync.Mutex
	db      *sql.DB
	now     func() time.Time
	bcast   *Broadcaster
}

// OpenSQLite opens (creating if needed) the database at path and brings its
// schema up to date. ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "panda.db"
	}
	dsn := "file:" + path + "?_busy_timeout=10000&_fk=1"
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection keeps :memory: databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.L.Info("sqlite history DB initialized", "path", path)
	return &SQLiteStore{db: db, now: time.Now, bcast: NewBroadcaster()}, nil
}

func newProvider(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	return goose.NewProvider(goose.DialectSQLite3, db, fsys)
}

// migrate applies pending migrations. A database written by a newer schema
// than this build knows is wiped and rebuilt.
func migrate(ctx context.Context, db *sql.DB) error {
	p, err := newProvider(db)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	var latest int64
	for _, src := range p.ListSources() {
		latest = max(latest, src.Version)
	}

	if current > latest {
		logger.L.Warn("history schema is newer than supported; resetting", "current", current, "latest", latest)
		for _, stmt := range []string{
			`DROP TABLE IF EXISTS chat_messages;`,
			`DROP TABLE IF EXISTS goose_db_version;`,
		} {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("reset schema: %w", err)
			}
		}
		if p, err = newProvider(db); err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
	}

	results, err := p.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate history: %w", err)
	}
	for _, r := range results {
		logger.L.Debug("applied migration", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stamp(msg, s.now)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (text, is_user, timestamp) VALUES (?,?,?);`,
		msg.Text, msg.FromUser, msg.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if msg.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	s.publish(ctx)
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Message, error) {
	return s.query(ctx, `SELECT id, text, is_user, timestamp FROM chat_messages ORDER BY timestamp ASC, id ASC;`)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Latest(ctx context.Context, n int) ([]Message, error) {
	if n <= 0 {
		return []Message{}, nil
	}
	return s.query(ctx, `SELECT id, text, is_user, timestamp FROM chat_messages ORDER BY timestamp DESC, id DESC LIMIT ?;`, n)
}

func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages WHERE id = ?;`, id)
	if err != nil {
		return fmt.Errorf("delete message %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.publish(ctx)
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM chat_messages;`); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	s.bcast.Publish([]Message{})
	return nil
}

func (s *SQLiteStore) Subscribe(fn func([]Message)) func() {
	return s.bcast.Subscribe(fn)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// publish sends the current list to subscribers. Callers hold writeMu and
// have already committed, so a failed snapshot is logged rather than returned.
func (s *SQLiteStore) publish(ctx context.Context) {
	if s.bcast.Len() == 0 {
		return
	}
	snap, err := s.List(context.WithoutCancel(ctx))
	if err != nil {
		logger.FromContext(ctx).Warn("history snapshot failed", "error", err)
		return
	}
	s.bcast.Publish(snap)
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			m  Message
			ts int64
		)
		if err := rows.Scan(&m.ID, &m.Text, &m.FromUser, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = time.Unix(0, ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return out, nil
}

var _ Store = (*SQLiteStore)(nil)
