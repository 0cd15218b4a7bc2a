// Package ingest loads normalized deal inputs (statements, transaction
// ledger, equipment records) for the metrics engine. It accepts the two
// interchange shapes the extraction tooling emits: a JSON deal file or an
// XLSX workbook with one sheet per statement period. All string-to-number
// coercion happens here, exactly once; the engine only ever sees decimals.
package ingest

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/saleready-cli/internal/config"
	"github.com/sells-group/saleready-cli/internal/model"
)

// Deal is a fully loaded input set for one metrics computation.
type Deal struct {
	Name       string
	Statements []model.Statement
	Ledger     []model.LedgerEntry
	Equipment  []model.EquipmentItem
	// Analysis carries per-deal overrides from the deal file, nil when the
	// file supplies none.
	Analysis *config.AnalysisConfig
}

// Load reads a deal file, dispatching on extension.
func Load(path string) (*Deal, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ReadJSON(path)
	case ".xlsx":
		return ReadXLSX(path)
	default:
		return nil, eris.Errorf("ingest: unsupported deal file type %q", filepath.Ext(path))
	}
}

// baseName returns the file name without directory or extension, used as
// the deal name when the file does not supply one.
func baseName(path string) string {
	b := filepath.Base(path)
	return strings.TrimSuffix(b, filepath.Ext(b))
}
