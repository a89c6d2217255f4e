package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"TIFF_DEFAULT_QUALITY", "TIFF_REPORT_DETAIL_PAGES", "TIFF_WORKERS", "TIFF_PDF_ENGINE",
		"TIFF_SECONDARY_DECODER", "STORAGE_BACKEND", "LOG_LEVEL", "AXIOM_DATASET"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()

	if cfg.Conversion.DefaultQuality != 85 {
		t.Errorf("DefaultQuality = %d", cfg.Conversion.DefaultQuality)
	}
	if cfg.Conversion.DetailThreshold != 10 {
		t.Errorf("DetailThreshold = %d", cfg.Conversion.DetailThreshold)
	}
	if cfg.Conversion.Workers != 1 || cfg.Conversion.Engine != "native" || cfg.Conversion.SecondaryDecoder != "collection" {
		t.Errorf("unexpected conversion defaults %+v", cfg.Conversion)
	}
	if cfg.Storage.Backend != "dir" || cfg.Logging.Level != "info" {
		t.Errorf("unexpected defaults: storage=%q level=%q", cfg.Storage.Backend, cfg.Logging.Level)
	}
	if cfg.Axiom.Dataset != "dev_tiffconv" || cfg.Axiom.FlushInterval != 10*time.Second {
		t.Errorf("unexpected axiom defaults %+v", cfg.Axiom)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TIFF_REPORT_DETAIL_PAGES", "25")
	t.Setenv("TIFF_WORKERS", "6")
	t.Setenv("TIFF_VERIFY_OUTPUT", "yes")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_USE_PATH_STYLE", "1")
	t.Setenv("AXIOM_FLUSH_INTERVAL", "3s")

	cfg := FromEnv()
	if cfg.Conversion.DetailThreshold != 25 || cfg.Conversion.Workers != 6 || !cfg.Conversion.VerifyOutput {
		t.Errorf("conversion overrides not applied: %+v", cfg.Conversion)
	}
	if cfg.Storage.Backend != "s3" || !cfg.Storage.UsePathStyle {
		t.Errorf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Axiom.FlushInterval != 3*time.Second {
		t.Errorf("FlushInterval = %s", cfg.Axiom.FlushInterval)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	t.Setenv("TIFF_DEFAULT_QUALITY", "250")
	t.Setenv("TIFF_WORKERS", "-3")
	t.Setenv("TIFF_DEFAULT_DPI", "zero")
	t.Setenv("AXIOM_FLUSH_INTERVAL", "soon")

	cfg := FromEnv()
	if cfg.Conversion.DefaultQuality != 85 {
		t.Errorf("DefaultQuality = %d", cfg.Conversion.DefaultQuality)
	}
	if cfg.Conversion.Workers != 1 {
		t.Errorf("Workers = %d", cfg.Conversion.Workers)
	}
	if cfg.Conversion.DefaultDPI != 300 {
		t.Errorf("DefaultDPI = %v", cfg.Conversion.DefaultDPI)
	}
	if cfg.Axiom.FlushInterval != 10*time.Second {
		t.Errorf("FlushInterval = %s", cfg.Axiom.FlushInterval)
	}
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("TIFF_CONVERT_TEST_ENGINE=gofpdf\nTIFF_WORKERS=3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TIFF_WORKERS", "5")
	t.Cleanup(func() { os.Unsetenv("TIFF_CONVERT_TEST_ENGINE") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if os.Getenv("TIFF_CONVERT_TEST_ENGINE") != "gofpdf" {
		t.Error("dotenv value not exported")
	}
	if cfg.Conversion.Workers != 5 {
		t.Errorf("environment should win over dotenv, got Workers=%d", cfg.Conversion.Workers)
	}

	if _, err := Load(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing dotenv file should be ignored: %v", err)
	}
}
