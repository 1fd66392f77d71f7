// Package reporting renders run results to files for CI artifacts and
// human review.
package reporting

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/uatu-sec/riskgate/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Reporter writes risk results in a concrete output format.
type Reporter interface {
	// WriteContract renders a single contract's risk record.
	WriteContract(risk *schemas.ContractRisk) error
	// WritePortfolio renders the portfolio snapshot.
	WritePortfolio(snap *schemas.PortfolioSnapshot) error
}

// New creates a reporter for the given format writing under dir.
// Supported formats are "json" and "csv".
func New(format, dir string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return &jsonReporter{dir: dir}, nil
	case "csv":
		return &csvReporter{dir: dir}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}

type jsonReporter struct {
	dir string
}

func (r *jsonReporter) WriteContract(risk *schemas.ContractRisk) error {
	return r.write(fmt.Sprintf("%s.risk.json", risk.ContractID), risk)
}

func (r *jsonReporter) WritePortfolio(snap *schemas.PortfolioSnapshot) error {
	return r.write("portfolio.json", snap)
}

func (r *jsonReporter) write(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(r.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

type csvReporter struct {
	dir string
}

// contractHeader is the stable export schema consumed by downstream
// spreadsheets; changing column order is a breaking change.
var contractHeader = []string{"contract", "function", "score", "grade", "delta", "stride_cats"}

func (r *csvReporter) WriteContract(risk *schemas.ContractRisk) error {
	rows := make([][]string, 0, len(risk.ByFunction)+1)
	rows = append(rows, contractHeader)
	for _, f := range risk.ByFunction {
		cats := make([]string, len(f.StrideCategories))
		for i, c := range f.StrideCategories {
			cats[i] = string(c)
		}
		rows = append(rows, []string{
			f.ContractID,
			f.FunctionName,
			formatScore(f.Score),
			string(f.Grade),
			formatDelta(f.Delta),
			strings.Join(cats, ","),
		})
	}
	return r.write(fmt.Sprintf("%s.risk.csv", risk.ContractID), rows)
}

// WritePortfolio emits the portfolio heatmap: one row per contract with its
// overall score, grade, and delta against the promoted baseline.
func (r *csvReporter) WritePortfolio(snap *schemas.PortfolioSnapshot) error {
	ids := make([]string, 0, len(snap.ByContract))
	for id := range snap.ByContract {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids)+1)
	rows = append(rows, []string{"contract", "overall", "grade", "delta"})
	for _, id := range ids {
		c := snap.ByContract[id]
		rows = append(rows, []string{
			c.ContractID,
			formatScore(c.Overall),
			string(c.Grade),
			formatDelta(c.Delta),
		})
	}
	return r.write("portfolio.heatmap.csv", rows)
}

func (r *csvReporter) write(name string, rows [][]string) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(r.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	return nil
}

// formatScore trims trailing zeros so 32.00 exports as "32" and 32.50 as
// "32.5", matching the gate's reason wording.
func formatScore(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}

// formatDelta renders a missing baseline as an empty cell rather than zero.
func formatDelta(d *float64) string {
	if d == nil {
		return ""
	}
	return formatScore(*d)
}
