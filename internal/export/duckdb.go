package export

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/frances-ha/egm722/internal/analysis"
	"github.com/twpayne/go-geom/encoding/wkt"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDB table names.
const (
	TableCountySummary = "county_summary"
	TableWardFragments = "ward_fragments"
)

// Tables is what DuckDB receives from one run.
type Tables struct {
	Summary analysis.Summary
	Clip    *analysis.ClipResult
	// CountyField and PopulationField name the fragment attributes copied
	// into ward_fragments.
	CountyField     string
	PopulationField string
	// WardField names the ward label attribute. Empty leaves the column null.
	WardField string
}

// DuckDB replaces the county_summary and ward_fragments tables in the
// database at path. Geometries are stored as WKT in the collection's CRS.
func DuckDB(ctx context.Context, path string, t Tables, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}
	if err := writeTables(ctx, db, t); err != nil {
		return err
	}

	fragments := 0
	if t.Clip != nil {
		fragments = t.Clip.Fragments.Len()
	}
	logger.Debug("duckdb export written", "path", path,
		"counties", len(t.Summary), "fragments", fragments)
	return nil
}

func writeTables(ctx context.Context, db *sql.DB, t Tables) (err error) {
	lengths := make(map[string]analysis.CountyLength)
	crs := ""
	if t.Clip != nil {
		for _, cl := range t.Clip.PerCounty {
			lengths[cl.County] = cl
		}
		crs = t.Clip.Fragments.CRS
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{
		`CREATE OR REPLACE TABLE ` + TableCountySummary + ` (
			county VARCHAR PRIMARY KEY,
			population DOUBLE NOT NULL,
			wards INTEGER NOT NULL,
			fragments INTEGER NOT NULL,
			boundary_length DOUBLE NOT NULL
		)`,
		`CREATE OR REPLACE TABLE ` + TableWardFragments + ` (
			id INTEGER PRIMARY KEY,
			county VARCHAR NOT NULL,
			ward VARCHAR,
			population DOUBLE,
			boundary_length DOUBLE NOT NULL,
			crs VARCHAR NOT NULL,
			wkt VARCHAR NOT NULL
		)`,
	} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	for _, row := range t.Summary {
		cl := lengths[row.County]
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+TableCountySummary+` VALUES (?, ?, ?, ?, ?)`,
			row.County, row.Total, row.Wards, cl.Fragments, cl.Length)
		if err != nil {
			return fmt.Errorf("failed to insert summary for %s: %w", row.County, err)
		}
	}

	if t.Clip != nil {
		for i, f := range t.Clip.Fragments.Features {
			var text string
			if text, err = wkt.Marshal(f.Geometry); err != nil {
				return fmt.Errorf("fragment %d: failed to encode wkt: %w", i, err)
			}
			county, _ := f.String(t.CountyField)
			length, _ := f.Float(analysis.FieldBoundaryLength)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO `+TableWardFragments+` VALUES (?, ?, ?, ?, ?, ?, ?)`,
				i, county, optionalString(f.Properties, t.WardField),
				optionalFloat(f.Properties, t.PopulationField), length, crs, text)
			if err != nil {
				return fmt.Errorf("failed to insert fragment %d: %w", i, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit export: %w", err)
	}
	return nil
}

func optionalString(props map[string]any, field string) sql.NullString {
	if field == "" {
		return sql.NullString{}
	}
	switch v := props[field].(type) {
	case string:
		return sql.NullString{String: v, Valid: true}
	case float64:
		return sql.NullString{String: fmt.Sprint(v), Valid: true}
	}
	return sql.NullString{}
}

func optionalFloat(props map[string]any, field string) sql.NullFloat64 {
	if v, ok := props[field].(float64); ok {
		return sql.NullFloat64{Float64: v, Valid: true}
	}
	return sql.NullFloat64{}
}
