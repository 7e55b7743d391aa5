package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/freshness-monitor/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
	"github.com/sirupsen/logrus"
)

// DuckOptions tunes the embedded database.
type DuckOptions struct {
	MemoryLimit   string
	Threads       int
	TempDirectory string
	Logger        logrus.FieldLogger
}

// DuckStore persists results in a DuckDB file, one row per evaluated reading.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	log    logrus.FieldLogger

	// DuckDB serializes writers per connection; keep appends ordered.
	mu sync.Mutex
}

var valueColumns = func() string {
	names := make([]string, 0, models.NumChannels)
	for _, c := range models.Channels {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}()

const resultColumns = "id, ts, %s, status, explanation, confidence, reading_count, adaptive_active, verdicts"

// NewDuckStore opens (or creates) the database at dbPath. An empty path
// opens an in-memory database.
func NewDuckStore(dbPath string, opts DuckOptions) (*DuckStore, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "duckstore")
	log.WithField("path", dbPath).Info("opening database")

	pragmas := duckPragmas(opts)
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			log.Debugf("executing: %s", pragma)
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return fmt.Errorf("%s: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DuckStore{db: db, dbPath: dbPath, log: log}, nil
}

func duckPragmas(opts DuckOptions) []string {
	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}
	if opts.TempDirectory != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA temp_directory='%s'", opts.TempDirectory))
	}
	return pragmas
}

func createSchema(db *sql.DB) error {
	stmts := []string{
		"CREATE SEQUENCE IF NOT EXISTS readings_seq START 1",
		`CREATE TABLE IF NOT EXISTS readings (
			seq             BIGINT PRIMARY KEY DEFAULT nextval('readings_seq'),
			id              VARCHAR NOT NULL,
			ts              TIMESTAMP NOT NULL,
			temperature     DOUBLE NOT NULL,
			humidity        DOUBLE NOT NULL,
			gas_general     DOUBLE NOT NULL,
			gas_alcohol     DOUBLE NOT NULL,
			gas_ammonia     DOUBLE NOT NULL,
			status          VARCHAR NOT NULL,
			explanation     VARCHAR NOT NULL,
			confidence      DOUBLE NOT NULL,
			reading_count   BIGINT NOT NULL,
			adaptive_active BOOLEAN NOT NULL,
			verdicts        VARCHAR NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Path returns the database file location.
func (ds *DuckStore) Path() string {
	return ds.dbPath
}

func (ds *DuckStore) Append(ctx context.Context, result *models.Result) error {
	verdicts, err := json.Marshal(result.Verdicts)
	if err != nil {
		return fmt.Errorf("failed to encode verdicts: %w", err)
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	query := fmt.Sprintf("INSERT INTO readings ("+resultColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", valueColumns)
	v := result.Values
	_, err = ds.db.ExecContext(ctx, query,
		result.ID,
		result.Timestamp.UTC(),
		v[models.ChannelTemperature],
		v[models.ChannelHumidity],
		v[models.ChannelGasGeneral],
		v[models.ChannelGasAlcohol],
		v[models.ChannelGasAmmonia],
		string(result.Status),
		result.Explanation,
		result.Confidence,
		int64(result.ReadingCount),
		result.AdaptiveActive,
		string(verdicts),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result %s: %w", result.ID, err)
	}
	return nil
}

func (ds *DuckStore) Latest(ctx context.Context) (*models.Result, error) {
	results, err := ds.History(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}
	return results[0], nil
}

func (ds *DuckStore) History(ctx context.Context, limit int) ([]*models.Result, error) {
	query := fmt.Sprintf("SELECT "+resultColumns+" FROM readings ORDER BY seq DESC", valueColumns)
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	var out []*models.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return out, nil
}

func (ds *DuckStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := ds.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings").Scan(&n); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to count results: %w", err)
	}
	return n, nil
}

// Close closes the database connection.
func (ds *DuckStore) Close() error {
	ds.log.Info("closing database")
	return ds.db.Close()
}

func scanResult(rows *sql.Rows) (*models.Result, error) {
	var (
		r        models.Result
		ts       time.Time
		status   string
		count    int64
		verdicts string
	)
	v := &r.Values
	err := rows.Scan(
		&r.ID,
		&ts,
		&v[models.ChannelTemperature],
		&v[models.ChannelHumidity],
		&v[models.ChannelGasGeneral],
		&v[models.ChannelGasAlcohol],
		&v[models.ChannelGasAmmonia],
		&status,
		&r.Explanation,
		&r.Confidence,
		&count,
		&r.AdaptiveActive,
		&verdicts,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan result: %w", err)
	}
	r.Timestamp = ts.UTC()
	r.Status = models.GlobalStatus(status)
	r.ReadingCount = int(count)
	if err := json.Unmarshal([]byte(verdicts), &r.Verdicts); err != nil {
		return nil, fmt.Errorf("failed to decode verdicts of %s: %w", r.ID, err)
	}
	return &r, nil
}

var _ Store = (*DuckStore)(nil)
