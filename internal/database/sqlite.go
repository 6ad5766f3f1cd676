// Package database stores deployment history in SQLite.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cfgpush/internal/database/migrations"
	"cfgpush/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database is the deployment history store.
type Database interface {
	RecordDeployment(ctx context.Context, d model.Deployment, items []model.DeploymentItem) error
	FindDeployment(ctx context.Context, id string) (*model.Deployment, error)
	ListDeployments(ctx context.Context, profile string, limit int) ([]model.Deployment, error)
	ListDeploymentItems(ctx context.Context, id string) ([]model.DeploymentItem, error)
	Close() error
}

var _ Database = (*SQLiteDatabase)(nil)

// SQLiteDatabase implements Database using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the database at path and brings its schema up to
// date. path can be a file path or ":memory:".
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	return &SQLiteDatabase{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs
// the schema relies on. path can be a file path or ":memory:".
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: writes are rare and :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	// SQLite default is OFF; the items table cascades on delete.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the path the database was opened with.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// RecordDeployment stores a deployment and its items in one transaction.
func (s *SQLiteDatabase) RecordDeployment(ctx context.Context, d model.Deployment, items []model.DeploymentItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO deployments (id, profile, host, preset, stamp, outcome, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Profile, d.Host, d.Preset, d.Stamp, d.Outcome, d.Error,
		d.StartedAt.UTC(), d.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert deployment %s: %w", d.ID, err)
	}

	for _, it := range items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO deployment_items (deployment_id, position, name, local_path, remote_path,
				backup_path, backup_error, uploaded, upload_error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, it.Position, it.Name, it.LocalPath, it.RemotePath,
			it.BackupPath, it.BackupError, it.Uploaded, it.UploadError)
		if err != nil {
			return fmt.Errorf("failed to insert item %d of deployment %s: %w", it.Position, d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const deploymentColumns = `
	d.id, d.profile, d.host, d.preset, d.stamp, d.outcome, d.error, d.started_at, d.finished_at,
	(SELECT COUNT(*) FROM deployment_items i WHERE i.deployment_id = d.id AND i.uploaded = 1),
	(SELECT COUNT(*) FROM deployment_items i WHERE i.deployment_id = d.id)`

type scanner interface {
	Scan(dest ...any) error
}

func scanDeployment(row scanner) (model.Deployment, error) {
	var d model.Deployment
	err := row.Scan(&d.ID, &d.Profile, &d.Host, &d.Preset, &d.Stamp, &d.Outcome, &d.Error,
		&d.StartedAt, &d.FinishedAt, &d.Uploaded, &d.Items)
	return d, err
}

// FindDeployment returns the deployment with the given id, or nil when there
// is none.
func (s *SQLiteDatabase) FindDeployment(ctx context.Context, id string) (*model.Deployment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deploymentColumns+` FROM deployments d WHERE d.id = ?`, id)
	d, err := scanDeployment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deployment %s: %w", id, err)
	}
	return &d, nil
}

// ListDeployments returns the most recent deployments first. An empty
// profile lists every profile; limit <= 0 means no limit.
func (s *SQLiteDatabase) ListDeployments(ctx context.Context, profile string, limit int) ([]model.Deployment, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+deploymentColumns+`
		FROM deployments d
		WHERE ? = '' OR d.profile = ?
		ORDER BY d.started_at DESC, d.rowid DESC
		LIMIT ?`, profile, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	var result []model.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	return result, nil
}

// ListDeploymentItems returns the items of a deployment in order.
func (s *SQLiteDatabase) ListDeploymentItems(ctx context.Context, id string) ([]model.DeploymentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT deployment_id, position, name, local_path, remote_path,
			backup_path, backup_error, uploaded, upload_error
		FROM deployment_items
		WHERE deployment_id = ?
		ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list items of deployment %s: %w", id, err)
	}
	defer rows.Close()

	var result []model.DeploymentItem
	for rows.Next() {
		var it model.DeploymentItem
		if err := rows.Scan(&it.DeploymentID, &it.Position, &it.Name, &it.LocalPath, &it.RemotePath,
			&it.BackupPath, &it.BackupError, &it.Uploaded, &it.UploadError); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list items of deployment %s: %w", id, err)
	}
	return result, nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	return s.db.Close()
}
