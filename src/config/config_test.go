package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"NoShowInsight/src/processor"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	if err != nil {
		t.Fatalf("loadConfigs: %v", err)
	}

	if cfg.DataFile != "medical appointment.csv" || cfg.HistogramBins != 30 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	policy, err := cfg.Policy()
	if err != nil || policy != processor.DropNegative {
		t.Errorf("Policy = %q, %v", policy, err)
	}
	if cfg.Email.CheckInterval != 5*time.Minute {
		t.Errorf("CheckInterval = %v", cfg.Email.CheckInterval)
	}

	schema := dcfg.Schema()
	if schema.NoShow != "No_show" || len(schema.NoShowAliases) != 1 || schema.NoShowAliases[0] != "No-show" {
		t.Errorf("schema = %+v", schema)
	}
}

func TestLoadConfigFromFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{
		"data_file": "appointments.csv",
		"waiting_policy": "clamp",
		"email": {"enabled": true, "check_interval": "90s"}
	}`)
	writeFile(t, dir, "dataconfig.json", `{"columns": {"gender": "Sex"}}`)
	t.Setenv("NOSHOW_HISTOGRAM_BINS", "12")

	cfg, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	if err != nil {
		t.Fatalf("loadConfigs: %v", err)
	}

	if cfg.DataFile != "appointments.csv" {
		t.Errorf("DataFile = %q", cfg.DataFile)
	}
	if policy, _ := cfg.Policy(); policy != processor.ClampNegative {
		t.Errorf("Policy = %q", policy)
	}
	if cfg.Email.CheckInterval != 90*time.Second {
		t.Errorf("CheckInterval = %v", cfg.Email.CheckInterval)
	}
	if cfg.HistogramBins != 12 {
		t.Errorf("HistogramBins = %d, want env override 12", cfg.HistogramBins)
	}
	if s := dcfg.Schema(); s.Gender != "Sex" || s.Age != "Age" {
		t.Errorf("schema = %+v", s)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	cases := map[string]string{
		"bad json":   `{"data_file": `,
		"bad policy": `{"waiting_policy": "ignore"}`,
		"bad bins":   `{"histogram_bins": 0}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "config.json", content)
			if _, _, err := loadConfigs(dir, "config.json", "dataconfig.json"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
