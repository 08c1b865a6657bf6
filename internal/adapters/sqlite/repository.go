package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ctreader/internal/domain"
	"ctreader/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DefaultDBPath is where preferences live when no path is configured.
const DefaultDBPath = "./data/ctreader.db"

// Repository implements ports.PreferencesRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = DefaultDBPath
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w: %w", filepath.Dir(dbPath), ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers; SQLite would otherwise return SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger, now: time.Now}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS chart_selection (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		symbol TEXT NOT NULL,
		interval TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS indicator_toggles (
		name TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w: %w", ports.ErrQueryFailed, err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// LoadPreferences returns the saved selection and toggles, or nil if nothing was saved yet.
func (r *Repository) LoadPreferences(ctx context.Context) (*domain.Preferences, error) {
	prefs := &domain.Preferences{Indicators: make(map[domain.IndicatorName]bool)}
	found := false

	const selQuery = `SELECT symbol, interval FROM chart_selection WHERE id = 1`
	err := r.db.QueryRowContext(ctx, selQuery).Scan(&prefs.Selection.Symbol, &prefs.Selection.Interval)
	switch {
	case err == nil:
		found = true
	case errors.Is(err, sql.ErrNoRows):
		r.logger.Debug(ctx, "No saved chart selection")
	default:
		return nil, fmt.Errorf("failed to query chart selection: %w: %w", ports.ErrQueryFailed, err)
	}

	const toggleQuery = `SELECT name, enabled FROM indicator_toggles`
	rows, err := r.db.QueryContext(ctx, toggleQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicator toggles: %w: %w", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var enabled bool
		if err := rows.Scan(&name, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan indicator toggle: %w: %w", ports.ErrQueryFailed, err)
		}
		ind, ok := domain.ParseIndicator(name)
		if !ok {
			r.logger.Warn(ctx, "Ignoring unknown saved indicator", map[string]interface{}{"name": name})
			continue
		}
		prefs.Indicators[ind] = enabled
		found = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating indicator toggles: %w: %w", ports.ErrQueryFailed, err)
	}

	if !found {
		return nil, nil
	}
	return prefs, nil
}

// SaveSelection stores the current symbol and timeframe, replacing the previous one.
func (r *Repository) SaveSelection(ctx context.Context, sel domain.Selection) error {
	const query = `
	INSERT INTO chart_selection (id, symbol, interval, updated_at)
	VALUES (1, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET symbol = excluded.symbol, interval = excluded.interval, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, sel.Symbol, sel.Interval, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to save selection %s/%s: %w: %w", sel.Symbol, sel.Interval, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Selection saved", map[string]interface{}{"symbol": sel.Symbol, "interval": sel.Interval})
	return nil
}

// SaveIndicator stores one indicator toggle.
func (r *Repository) SaveIndicator(ctx context.Context, name domain.IndicatorName, enabled bool) error {
	const query = `
	INSERT INTO indicator_toggles (name, enabled, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`

	if _, err := r.db.ExecContext(ctx, query, string(name), enabled, r.now().UTC()); err != nil {
		return fmt.Errorf("failed to save indicator %s: %w: %w", name, ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Indicator toggle saved", map[string]interface{}{"indicator": string(name), "enabled": enabled})
	return nil
}
