package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_PipelineConfig(t *testing.T) {
	os.Setenv("PIPELINE_WORKERS", "8")
	os.Setenv("QUALITY_COMPLETENESS_WEIGHT", "0.7")
	os.Setenv("QUALITY_VALIDITY_WEIGHT", "0.3")
	os.Setenv("PIPELINE_MIN_RECORD_DATE", "2000-01-01")
	defer func() {
		os.Unsetenv("PIPELINE_WORKERS")
		os.Unsetenv("QUALITY_COMPLETENESS_WEIGHT")
		os.Unsetenv("QUALITY_VALIDITY_WEIGHT")
		os.Unsetenv("PIPELINE_MIN_RECORD_DATE")
	}()

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 0.7, cfg.Pipeline.CompletenessWeight)
	assert.Equal(t, 0.3, cfg.Pipeline.ValidityWeight)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), cfg.Pipeline.MinRecordDate)
}

func TestLoad_Defaults(t *testing.T) {
	os.Unsetenv("PIPELINE_WORKERS")
	os.Unsetenv("DB_NAME")

	cfg, err := Load()
	assert.NoError(t, err)

	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, "nhs_warehouse", cfg.Database.Database)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.LoadTimeout)
	assert.Equal(t, "data/sources/pas/patients.csv", cfg.Sources.PatientsCSV)
}

func TestLoad_InvalidMinDate(t *testing.T) {
	os.Setenv("PIPELINE_MIN_RECORD_DATE", "not-a-date")
	defer os.Unsetenv("PIPELINE_MIN_RECORD_DATE")

	_, err := Load()
	assert.Error(t, err)
}
