// Package drift generates the persisted baseline snapshot consumed by
// external drift-detection tooling: the database schema as served plus
// every endpoint definition with its validation outcome.
package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mxcp-labs/mxcp-go/internal/endpoints"
	"github.com/mxcp-labs/mxcp-go/internal/hash"
	"github.com/mxcp-labs/mxcp-go/internal/sqlsession"
)

// SnapshotVersion is the persisted format version.
const SnapshotVersion = 1

// Column is one table column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is one database table with its declared columns.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// ValidationResult records whether an endpoint file passed validation.
type ValidationResult struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Resource is one endpoint entry in the snapshot. Definition carries the
// full endpoint IR so external tools can diff field by field.
type Resource struct {
	Validation ValidationResult       `json:"validation_results"`
	Tests      []endpoints.TestCase   `json:"test_results,omitempty"`
	Definition *endpoints.Endpoint    `json:"definition,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Snapshot is the persisted drift baseline.
type Snapshot struct {
	Version     int        `json:"version"`
	GeneratedAt time.Time  `json:"generated_at"`
	Tables      []Table    `json:"tables"`
	Resources   []Resource `json:"resources"`
}

// Generate builds a snapshot from the live session and load result.
// Files that failed to load appear with an error validation result and
// no definition, so drift tooling notices broken endpoints too.
func Generate(ctx context.Context, session *sqlsession.Session, result *endpoints.Result) (*Snapshot, error) {
	tables, err := collectTables(ctx, session)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Version:     SnapshotVersion,
		GeneratedAt: time.Now().UTC(),
		Tables:      tables,
		Resources:   make([]Resource, 0, len(result.Loaded)+len(result.Errors)),
	}

	sorted := make([]*endpoints.Endpoint, len(result.Loaded))
	copy(sorted, result.Loaded)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, ep := range sorted {
		snapshot.Resources = append(snapshot.Resources, Resource{
			Validation: ValidationResult{Status: "ok", Path: ep.SourceFile},
			Tests:      ep.Tests,
			Definition: ep,
			Metadata: map[string]interface{}{
				"kind":            string(ep.Kind),
				"enabled":         ep.Enabled,
				"definition_hash": hash.Definition(ep.ID, ep),
			},
		})
	}
	for _, loadErr := range result.Errors {
		snapshot.Resources = append(snapshot.Resources, Resource{
			Validation: ValidationResult{
				Status: "error",
				Path:   loadErr.File,
				Error:  loadErr.Err.Error(),
			},
		})
	}
	return snapshot, nil
}

// Write persists the snapshot, creating parent directories as needed.
func Write(path string, snapshot *Snapshot) error {
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	return os.WriteFile(path, append(raw, '\n'), 0o644)
}

// Read loads a previously written snapshot.
func Read(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot %s: %w", path, err)
	}
	return &snapshot, nil
}

func collectTables(ctx context.Context, session *sqlsession.Session) ([]Table, error) {
	names, err := session.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	sort.Strings(names)

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		rows, err := session.Execute(ctx,
			"SELECT name, type FROM pragma_table_info($tbl) ORDER BY cid",
			map[string]interface{}{"tbl": name})
		if err != nil {
			return nil, fmt.Errorf("failed to describe table %s: %w", name, err)
		}
		table := Table{Name: name}
		for _, row := range rows.Values {
			col := Column{}
			if s, ok := row[0].(string); ok {
				col.Name = s
			}
			if s, ok := row[1].(string); ok {
				col.Type = s
			}
			table.Columns = append(table.Columns, col)
		}
		tables = append(tables, table)
	}
	return tables, nil
}
