package files_manager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tiffconv/contracts"
)

type TIFFfolder = contracts.TIFFfolder

func isTIFF(name string) bool {
	if strings.HasPrefix(name, "._") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".tiff" || ext == ".tif"
}

// GetTIFFPaths lists the TIFF files directly inside dir, sorted by name, and
// their total size.
func GetTIFFPaths(dir string) ([]string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	tiffFiles := make([]string, 0, len(entries))
	var size int64 = 0
	for _, entry := range entries {
		if entry.IsDir() || !isTIFF(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		tiffFiles = append(tiffFiles, filepath.Join(dir, entry.Name()))
		size += info.Size()
	}
	sort.Strings(tiffFiles)
	return tiffFiles, size, nil
}

// GetTIFFFolders returns every subdirectory of rootFolder that holds TIFF
// files.
func GetTIFFFolders(rootFolder string) ([]TIFFfolder, error) {
	subDirs, err := os.ReadDir(rootFolder)
	if err != nil {
		return nil, err
	}
	tiffFolders := make([]TIFFfolder, 0, len(subDirs))

	for _, entry := range subDirs {
		if !entry.IsDir() {
			continue
		}
		subDirPath := filepath.Join(rootFolder, entry.Name())
		tiffFiles, size, _ := GetTIFFPaths(subDirPath)
		if len(tiffFiles) == 0 {
			continue
		}
		tiffFolders = append(tiffFolders, TIFFfolder{
			TiffFilesPaths: tiffFiles,
			Name:           entry.Name(),
			Path:           subDirPath,
			TiffFilesSize:  size,
		})
	}
	return tiffFolders, nil
}

// OutputName maps an input file name to its converted name.
func OutputName(inputPath string, format contracts.OutputFormat) string {
	base := filepath.Base(inputPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if format == contracts.RasterSingle {
		return name + ".jpg"
	}
	return name + ".pdf"
}

var ErrInvalidKey = errors.New("key escapes the bucket directory")

// DirStore keeps objects as files: bucket is a directory under Root and key a
// slash-separated path inside it.
type DirStore struct {
	Root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

func (d *DirStore) path(bucket, key string) (string, error) {
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	rel := filepath.Clean(filepath.FromSlash(key))
	if rel == "." || filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(d.Root, bucket, rel), nil
}

func (d *DirStore) Fetch(_ context.Context, bucket, key string) ([]byte, error) {
	p, err := d.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Put stores data under bucket/key. The content type is not persisted.
func (d *DirStore) Put(_ context.Context, bucket, key string, data []byte, _ string) error {
	p, err := d.path(bucket, key)
	if err != nil {
		return err
	}
	return WriteFileAtomic(p, data)
}

// WriteFileAtomic replaces p with data so readers never see a partial file.
// The data goes to a temporary file beside p, its size is checked and the
// file is renamed into place.
func WriteFileAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(p)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to get file info: %w", err)
	}
	if info.Size() != int64(len(data)) {
		return fmt.Errorf("file is truncated: %s has %d of %d bytes", tmpPath, info.Size(), len(data))
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}
