package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"tiffconv/config"
	"tiffconv/contracts"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("II*\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBatchJobs(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "b.tif"))
	touch(t, filepath.Join(root, "a.TIFF"))
	touch(t, filepath.Join(root, "notes.txt"))
	touch(t, filepath.Join(root, "box1", "scan.tif"))
	touch(t, filepath.Join(root, "empty", "readme.md"))

	jobs, err := batchJobs(root, "/out", contracts.DocumentMulti)
	if err != nil {
		t.Fatal(err)
	}
	want := []job{
		{input: filepath.Join(root, "a.TIFF"), output: filepath.Join("/out", "a.pdf")},
		{input: filepath.Join(root, "b.tif"), output: filepath.Join("/out", "b.pdf")},
		{input: filepath.Join(root, "box1", "scan.tif"), output: filepath.Join("/out", "box1", "scan.pdf")},
	}
	if len(jobs) != len(want) {
		t.Fatalf("got %d jobs: %+v", len(jobs), jobs)
	}
	for i := range want {
		if jobs[i] != want[i] {
			t.Errorf("job %d = %+v, want %+v", i, jobs[i], want[i])
		}
	}
}

func TestSingleOutputPath(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "scan.tif")

	cases := []struct {
		name string
		args InputFlags
		want string
	}{
		{"beside input", InputFlags{Input: in, OutputFormat: "JPEG"}, filepath.Join(dir, "scan.jpg")},
		{"into directory", InputFlags{Input: in, Output: t.TempDir(), OutputFormat: "pdf"}, ""},
		{"explicit file", InputFlags{Input: in, Output: filepath.Join(dir, "x.pdf"), OutputFormat: "pdf"}, filepath.Join(dir, "x.pdf")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			want := c.want
			if want == "" {
				want = filepath.Join(c.args.Output, "scan.pdf")
			}
			if got := singleOutputPath(c.args); got != want {
				t.Errorf("singleOutputPath = %q, want %q", got, want)
			}
		})
	}
}

func TestNewConverterRejectsUnknownEngine(t *testing.T) {
	cfg := config.FromEnv()
	cfg.Conversion.Engine = "latex"
	if _, err := newConverter(cfg, InputFlags{Workers: 1}); err == nil {
		t.Error("unknown engine accepted")
	}
	cfg.Conversion.Engine = "gofpdf"
	if _, err := newConverter(cfg, InputFlags{Workers: 1}); err != nil {
		t.Errorf("gofpdf engine rejected: %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	cfg := config.FromEnv()
	cfg.Storage.DirRoot = t.TempDir()
	if _, err := openStore(context.Background(), cfg, "dir"); err != nil {
		t.Errorf("dir store: %v", err)
	}
	if _, err := openStore(context.Background(), cfg, "ftp"); err == nil {
		t.Error("unknown store accepted")
	}
}
