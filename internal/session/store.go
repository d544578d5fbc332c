package session

import (
	"compress/gzip"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/handcast-data/handcast/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite-backed session catalogue. It records which sessions
// ran, where their logs live, and a rate trail for each.
type Store struct {
	*sql.DB
	path string
}

// OpenStore opens (creating if necessary) the catalogue at path and brings
// its schema up to date.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	s := &Store{DB: db, path: path}
	if err := s.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// MigrateUp runs all pending migrations up to the latest version.
// Returns nil if no migrations were needed (already at latest version).
func (s *Store) MigrateUp(fsys fs.FS) error {
	m, err := s.newMigrate(fsys)
	if err != nil {
		return err
	}
	// Note: We don't close m here because it would close the underlying DB connection.
	// The migrate instance will be garbage collected when no longer needed.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	return nil
}

// MigrateDown rolls back the most recent migration.
func (s *Store) MigrateDown(fsys fs.FS) error {
	m, err := s.newMigrate(fsys)
	if err != nil {
		return err
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	if err := m.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}

	return nil
}

// MigrateVersion returns the current migration version and dirty state.
// Returns 0, false, nil if no migrations have been applied yet.
func (s *Store) MigrateVersion(fsys fs.FS) (version uint, dirty bool, err error) {
	m, err := s.newMigrate(fsys)
	if err != nil {
		return 0, false, err
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	version, dirty, err = m.Version()
	if err != nil && errors.Is(err, migrate.ErrNilVersion) {
		// No migrations applied yet
		return 0, false, nil
	}

	return version, dirty, err
}

// newMigrate creates a new migrate instance reading migrations from fsys.
func (s *Store) newMigrate(fsys fs.FS) (*migrate.Migrate, error) {
	src, err := iofs.New(fsys, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{}

	return m, nil
}

// migrateLogger implements migrate.Logger interface
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Session is one catalogue entry for a recorded or live tracking session.
type Session struct {
	SessionID   string `json:"session_id"`
	Label       string `json:"label"`
	Destination string `json:"destination"`
	LogPath     string `json:"log_path,omitempty"`
	StartedAtNs int64  `json:"started_at_ns"`
	EndedAtNs   *int64 `json:"ended_at_ns,omitempty"`
	Frames      int64  `json:"frames"`
}

// RateEntry is one persisted rate observation for a session.
type RateEntry struct {
	SessionID     string  `json:"session_id"`
	SampledAtNs   int64   `json:"sampled_at_ns"`
	FramesPerSec  float64 `json:"frames_per_sec"`
	HandsPerFrame float64 `json:"hands_per_frame"`
}

// BeginSession creates a new session row.
// If sess.SessionID is empty, a new UUID is generated.
func (s *Store) BeginSession(sess *Session) error {
	if sess.SessionID == "" {
		sess.SessionID = uuid.New().String()
	}
	if sess.StartedAtNs == 0 {
		sess.StartedAtNs = time.Now().UnixNano()
	}

	query := `
		INSERT INTO sessions (
			session_id, label, destination, log_path, started_at_ns, ended_at_ns, frames
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.Exec(query,
		sess.SessionID,
		sess.Label,
		sess.Destination,
		sess.LogPath,
		sess.StartedAtNs,
		nullInt64(sess.EndedAtNs),
		sess.Frames,
	)
	if err != nil {
		return fmt.Errorf("begin session: %w", err)
	}

	return nil
}

// EndSession marks a session finished and records its final frame count.
func (s *Store) EndSession(sessionID string, endedAtNs int64, frames int64) error {
	query := `
		UPDATE sessions
		SET ended_at_ns = ?,
		    frames = ?
		WHERE session_id = ?
	`

	result, err := s.Exec(query, endedAtNs, frames, sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	return nil
}

// AddRateSample persists one rate observation for a session.
func (s *Store) AddRateSample(sessionID string, sampledAtNs int64, framesPerSec, handsPerFrame float64) error {
	query := `
		INSERT INTO rate_samples (session_id, sampled_at_ns, frames_per_sec, hands_per_frame)
		VALUES (?, ?, ?, ?)
	`

	_, err := s.Exec(query, sessionID, sampledAtNs, framesPerSec, handsPerFrame)
	if err != nil {
		return fmt.Errorf("add rate sample: %w", err)
	}

	return nil
}

// GetSession retrieves a session by ID.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	query := `
		SELECT session_id, label, destination, log_path, started_at_ns, ended_at_ns, frames
		FROM sessions
		WHERE session_id = ?
	`

	var sess Session
	var endedAtNs sql.NullInt64

	err := s.QueryRow(query, sessionID).Scan(
		&sess.SessionID,
		&sess.Label,
		&sess.Destination,
		&sess.LogPath,
		&sess.StartedAtNs,
		&endedAtNs,
		&sess.Frames,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	if endedAtNs.Valid {
		v := endedAtNs.Int64
		sess.EndedAtNs = &v
	}

	return &sess, nil
}

// RecentSessions retrieves the most recently started sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT session_id, label, destination, log_path, started_at_ns, ended_at_ns, frames
		FROM sessions
		ORDER BY started_at_ns DESC
		LIMIT ?
	`

	rows, err := s.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var endedAtNs sql.NullInt64

		err := rows.Scan(
			&sess.SessionID,
			&sess.Label,
			&sess.Destination,
			&sess.LogPath,
			&sess.StartedAtNs,
			&endedAtNs,
			&sess.Frames,
		)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		if endedAtNs.Valid {
			v := endedAtNs.Int64
			sess.EndedAtNs = &v
		}

		sessions = append(sessions, &sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions rows: %w", err)
	}

	return sessions, nil
}

// RateSamples retrieves the rate trail for a session in chronological order.
func (s *Store) RateSamples(sessionID string, limit int) ([]RateEntry, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT session_id, sampled_at_ns, frames_per_sec, hands_per_frame
		FROM rate_samples
		WHERE session_id = ?
		ORDER BY sampled_at_ns ASC
		LIMIT ?
	`

	rows, err := s.Query(query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list rate samples: %w", err)
	}
	defer rows.Close()

	var samples []RateEntry
	for rows.Next() {
		var entry RateEntry
		if err := rows.Scan(
			&entry.SessionID,
			&entry.SampledAtNs,
			&entry.FramesPerSec,
			&entry.HandsPerFrame,
		); err != nil {
			return nil, fmt.Errorf("scan rate sample row: %w", err)
		}
		samples = append(samples, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate samples rows: %w", err)
	}

	return samples, nil
}

// AttachAdminRoutes attaches database debugging endpoints to the given HTTP
// mux served at /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		monitoring.Logf("failed to create tailsql server: %v", err)
		return
	}
	tsql.SetDB("sqlite://sessions.db", s.DB, &tailsql.DBOptions{
		Label: "Session DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := s.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				monitoring.Logf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}

func nullInt64(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}
