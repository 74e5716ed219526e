package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// settingsRow is the application configuration row. Every column is
// nullable; a NULL keeps the value from the file configuration.
type settingsRow struct {
	ID                      int64           `db:"id"`
	OutputType              sql.NullString  `db:"output_type"`
	Pages                   sql.NullInt64   `db:"pages"`
	Language                sql.NullString  `db:"language"`
	Mode                    sql.NullString  `db:"mode"`
	SkipArchiveFile         sql.NullString  `db:"skip_archive_file"`
	ImageDPI                sql.NullInt64   `db:"image_dpi"`
	UnpaperClean            sql.NullString  `db:"unpaper_clean"`
	Deskew                  sql.NullBool    `db:"deskew"`
	RotatePages             sql.NullBool    `db:"rotate_pages"`
	RotatePagesThreshold    sql.NullFloat64 `db:"rotate_pages_threshold"`
	MaxImagePixels          sql.NullFloat64 `db:"max_image_pixels"`
	ColorConversionStrategy sql.NullString  `db:"color_conversion_strategy"`
	UserArgs                []byte          `db:"user_args"`
}

// PostgresStore reads the first row of the application configuration table
// and merges persisted user args into its JSONB user_args column.
type PostgresStore struct {
	db    *sqlx.DB
	table string
	base  Config
}

// OpenPostgresStore connects to dsn. base supplies every setting the table
// does not carry (endpoints, credentials, parser options).
func OpenPostgresStore(ctx context.Context, dsn, table string, base Config) (*PostgresStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name: %q", table)
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to configuration database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewPostgresStore(db, table, base), nil
}

// NewPostgresStore wraps an open connection.
func NewPostgresStore(db *sqlx.DB, table string, base Config) *PostgresStore {
	return &PostgresStore{db: db, table: table, base: base}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Settings implements Store.
func (s *PostgresStore) Settings(ctx context.Context) (ParseSettings, error) {
	var row settingsRow
	query := fmt.Sprintf(`SELECT id, output_type, pages, language, mode, skip_archive_file,
		image_dpi, unpaper_clean, deskew, rotate_pages, rotate_pages_threshold,
		max_image_pixels, color_conversion_strategy, user_args
		FROM %s ORDER BY id LIMIT 1`, s.table)
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.base.Settings(), nil
		}
		return ParseSettings{}, fmt.Errorf("failed to load application configuration: %w", err)
	}

	cfg := s.base
	if err := row.apply(&cfg); err != nil {
		return ParseSettings{}, err
	}
	return cfg.Settings(), nil
}

// Persist implements Store. The arguments are merged into the stored
// object so keys written by other parses survive.
func (s *PostgresStore) Persist(ctx context.Context, userArgs map[string]any) error {
	payload, err := json.Marshal(userArgs)
	if err != nil {
		return fmt.Errorf("failed to encode user args: %w", err)
	}

	query := fmt.Sprintf(`UPDATE %[1]s
		SET user_args = COALESCE(user_args, '{}'::jsonb) || $1::jsonb
		WHERE id = (SELECT id FROM %[1]s ORDER BY id LIMIT 1)`, s.table)
	res, err := s.db.ExecContext(ctx, query, string(payload))
	if err != nil {
		return fmt.Errorf("failed to persist user args: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		insert := fmt.Sprintf(`INSERT INTO %s (user_args) VALUES ($1::jsonb)`, s.table)
		if _, err := s.db.ExecContext(ctx, insert, string(payload)); err != nil {
			return fmt.Errorf("failed to persist user args: %w", err)
		}
	}
	return nil
}

func (r settingsRow) apply(cfg *Config) error {
	if r.OutputType.Valid {
		cfg.OCR.OutputType = r.OutputType.String
	}
	if r.Pages.Valid {
		cfg.OCR.Pages = int(r.Pages.Int64)
	}
	if r.Language.Valid {
		cfg.OCR.Language = r.Language.String
	}
	if r.Mode.Valid {
		cfg.OCR.Mode = r.Mode.String
	}
	if r.SkipArchiveFile.Valid {
		cfg.OCR.SkipArchiveFile = r.SkipArchiveFile.String
	}
	if r.ImageDPI.Valid {
		cfg.OCR.ImageDPI = int(r.ImageDPI.Int64)
	}
	if r.UnpaperClean.Valid {
		cfg.OCR.Clean = r.UnpaperClean.String
	}
	if r.Deskew.Valid {
		cfg.OCR.Deskew = r.Deskew.Bool
	}
	if r.RotatePages.Valid {
		cfg.OCR.Rotate = r.RotatePages.Bool
	}
	if r.RotatePagesThreshold.Valid {
		cfg.OCR.RotateThreshold = r.RotatePagesThreshold.Float64
	}
	if r.MaxImagePixels.Valid {
		cfg.OCR.MaxImagePixels = int64(r.MaxImagePixels.Float64)
	}
	if r.ColorConversionStrategy.Valid {
		cfg.OCR.ColorConversionStrategy = r.ColorConversionStrategy.String
	}
	if len(r.UserArgs) > 0 {
		var args map[string]any
		if err := json.Unmarshal(r.UserArgs, &args); err != nil {
			return fmt.Errorf("failed to decode user_args of configuration %d: %w", r.ID, err)
		}
		cfg.OCR.UserArgs = args
	}
	return nil
}
