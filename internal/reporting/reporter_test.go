package reporting

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uatu-sec/riskgate/api/schemas"
)

func sampleContractRisk() *schemas.ContractRisk {
	delta := -4.5
	return &schemas.ContractRisk{
		ContractID: "vault",
		Overall:    72.17,
		Grade:      schemas.GradeHigh,
		ByFunction: []schemas.FunctionRisk{
			{
				ContractID:   "vault",
				FunctionName: "withdraw",
				Score:        92,
				Grade:        schemas.GradeCritical,
				StrideCategories: []schemas.StrideCategory{
					schemas.StrideElevationOfPrivilege,
					schemas.StrideTampering,
				},
				Delta: &delta,
			},
			{ContractID: "vault", FunctionName: "deposit", Score: 0, Grade: schemas.GradeInfo},
		},
		GeneratedAt: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
	}
}

func TestNewUnsupportedFormat(t *testing.T) {
	t.Parallel()

	_, err := New("sarif", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported report format")
}

func TestJSONReporter(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := New("json", dir)
	require.NoError(t, err)

	require.NoError(t, r.WriteContract(sampleContractRisk()))

	data, err := os.ReadFile(filepath.Join(dir, "vault.risk.json"))
	require.NoError(t, err)

	var loaded schemas.ContractRisk
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "vault", loaded.ContractID)
	assert.Equal(t, 72.17, loaded.Overall)
	require.NotNil(t, loaded.ByFunction[0].Delta)
	assert.Equal(t, -4.5, *loaded.ByFunction[0].Delta)
	assert.Nil(t, loaded.ByFunction[1].Delta, "a missing delta survives the round trip as null")
}

func TestJSONReporterPortfolio(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := New("json", dir)
	require.NoError(t, err)

	snap := &schemas.PortfolioSnapshot{
		RunID:         "run-1",
		Summary:       schemas.PortfolioSummary{Overall: 61.2, Grade: schemas.GradeMedium},
		WeightingMode: schemas.WeightingAverage,
	}
	require.NoError(t, r.WritePortfolio(snap))

	data, err := os.ReadFile(filepath.Join(dir, "portfolio.json"))
	require.NoError(t, err)

	var loaded schemas.PortfolioSnapshot
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, "run-1", loaded.RunID)
}

func TestCSVReporterContract(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := New("csv", dir)
	require.NoError(t, err)

	require.NoError(t, r.WriteContract(sampleContractRisk()))

	f, err := os.Open(filepath.Join(dir, "vault.risk.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	want := [][]string{
		{"contract", "function", "score", "grade", "delta", "stride_cats"},
		{"vault", "withdraw", "92", "Critical", "-4.5", "elevation_of_privilege,tampering"},
		{"vault", "deposit", "0", "Info", "", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("contract CSV mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVReporterHeatmap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	r, err := New("csv", dir)
	require.NoError(t, err)

	delta := 3.0
	snap := &schemas.PortfolioSnapshot{
		RunID: "run-1",
		ByContract: map[string]schemas.ContractRisk{
			"vault": {ContractID: "vault", Overall: 61.25, Grade: schemas.GradeMedium, Delta: &delta},
		},
	}
	require.NoError(t, r.WritePortfolio(snap))

	f, err := os.Open(filepath.Join(dir, "portfolio.heatmap.csv"))
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"contract", "overall", "grade", "delta"}, rows[0])
	assert.Equal(t, []string{"vault", "61.25", "Medium", "3"}, rows[1])
}

func TestFormatScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "32", formatScore(32.0))
	assert.Equal(t, "32.5", formatScore(32.50))
	assert.Equal(t, "32.46", formatScore(32.456))
	assert.Equal(t, "0", formatScore(0))
}
