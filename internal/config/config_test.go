package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from an empty dir so no stray config.yaml is picked up.
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "saleready.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0.15, cfg.Analysis.EBITDAMarginTarget)
	assert.Equal(t, 125000.0, cfg.Analysis.EquipmentFallbackValue)
	assert.Equal(t, 12, cfg.Analysis.AnnualizeMonths)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SALEREADY_STORE_DRIVER", "postgres")
	t.Setenv("SALEREADY_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
analysis:
  window_start: "2023-01-01"
  window_end: "2023-12-31"
  locations: ["Downtown", "Airport"]
  asking_price: 950000
`
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte(yaml), 0o644))
	t.Chdir(dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Downtown", "Airport"}, cfg.Analysis.Locations)
	assert.Equal(t, 950000.0, cfg.Analysis.AskingPrice)

	start, end, err := cfg.Analysis.Window()
	require.NoError(t, err)
	assert.Equal(t, 2023, start.Year())
	assert.Equal(t, 12, int(end.Month()))
}

func TestAnalysisConfig_Window_Invalid(t *testing.T) {
	t.Parallel()

	_, _, err := AnalysisConfig{WindowStart: "notadate", WindowEnd: "2023-12-31"}.Window()
	require.Error(t, err)

	_, _, err = AnalysisConfig{WindowStart: "2023-12-31", WindowEnd: "2023-01-01"}.Window()
	require.Error(t, err)
}

func TestAnalysisConfig_InScope(t *testing.T) {
	t.Parallel()

	a := AnalysisConfig{Locations: []string{"Downtown", "Airport Cafe"}}
	assert.True(t, a.InScope("Downtown"))
	assert.True(t, a.InScope("  downtown "))
	assert.True(t, a.InScope("AIRPORT CAFE"))
	assert.False(t, a.InScope("Suburb"))
	assert.False(t, a.InScope("TOTAL"))
}
