package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/voicenote/whisper-api/internal/auth"
	"github.com/voicenote/whisper-api/internal/db/models"
)

// ErrNotFound is returned when a row doesn't exist.
var ErrNotFound = errors.New("not found")

type Database struct {
	db     *sql.DB
	logger *log.Logger
}

func NewSQLite(path string, logger *log.Logger) (*Database, error) {
	sqlDB, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	d := &Database{db: sqlDB, logger: logger.WithPrefix("db")}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	d.logger.Debug("database ready", "path", path)
	return d, nil
}

func (d *Database) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transcriptions (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		engine TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT '',
		text TEXT NOT NULL,
		segments TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		processing_time REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transcriptions_created ON transcriptions(created_at);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		file_path TEXT NOT NULL,
		params TEXT NOT NULL,
		progress REAL DEFAULT 0,
		result TEXT,
		error TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		started_at DATETIME,
		completed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status, created_at);
	`
	_, err := d.db.Exec(schema)
	return err
}

// EnsureAdmin creates the admin account if no admin exists yet.
func (d *Database) EnsureAdmin(username, password string) error {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM users WHERE role = ?", models.RoleAdmin).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		"INSERT INTO users (username, password, role) VALUES (?, ?, ?)",
		username, hash, models.RoleAdmin,
	)
	if err != nil {
		return err
	}
	d.logger.Info("created admin user", "username", username)
	return nil
}

func (d *Database) GetUserByUsername(username string) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE username = ?",
		username,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (d *Database) GetUserByID(id int64) (*models.User, error) {
	u := &models.User{}
	err := d.db.QueryRow(
		"SELECT id, username, password, role, created_at, updated_at FROM users WHERE id = ?",
		id,
	).Scan(&u.ID, &u.Username, &u.Password, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

// SaveTranscription stores a result. ID and CreatedAt are filled in when empty.
func (d *Database) SaveTranscription(t *models.Transcription) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	segments := t.Segments
	if len(segments) == 0 {
		segments = []byte("[]")
	}
	_, err := d.db.Exec(`
		INSERT INTO transcriptions (id, filename, engine, language, text, segments, duration, processing_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Filename, t.Engine, t.Language, t.Text, string(segments), t.Duration, t.ProcessingTime, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transcription: %w", err)
	}
	return nil
}

func (d *Database) GetTranscription(id string) (*models.Transcription, error) {
	t := &models.Transcription{}
	var segments string
	err := d.db.QueryRow(`
		SELECT id, filename, engine, language, text, segments, duration, processing_time, created_at
		FROM transcriptions WHERE id = ?`, id,
	).Scan(&t.ID, &t.Filename, &t.Engine, &t.Language, &t.Text, &segments, &t.Duration, &t.ProcessingTime, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	t.Segments = []byte(segments)
	return t, nil
}

// ListTranscriptions returns a page of results, newest first, without
// segments, plus the total count.
func (d *Database) ListTranscriptions(limit, offset int) ([]models.Transcription, int, error) {
	var total int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM transcriptions").Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := d.db.Query(`
		SELECT id, filename, engine, language, text, duration, processing_time, created_at
		FROM transcriptions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := []models.Transcription{}
	for rows.Next() {
		var t models.Transcription
		if err := rows.Scan(&t.ID, &t.Filename, &t.Engine, &t.Language, &t.Text, &t.Duration, &t.ProcessingTime, &t.CreatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, t)
	}
	return list, total, rows.Err()
}

func (d *Database) DeleteTranscription(id string) error {
	res, err := d.db.Exec("DELETE FROM transcriptions WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// DB returns the underlying sql.DB for use by other packages (e.g., job queue)
func (d *Database) DB() *sql.DB {
	return d.db
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
