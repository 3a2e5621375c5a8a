package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.tif", "a/c.TIFF", "d.geojson", "e.txt"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := ListRasterFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0] != "a/c.TIFF" || files[1] != "b.tif" {
		t.Fatal(files)
	}
	files, err = ListFiles(filepath.Join(dir, "missing"), ".tif")
	if err != nil || files != nil {
		t.Fatal(files, err)
	}
}

func TestNewRasterKey(t *testing.T) {
	a, b := NewRasterKey(), NewRasterKey()
	if a == b || !strings.HasPrefix(a, "mem-") || len(a) != len("mem-")+36 {
		t.Fatal(a, b)
	}
	if GetFilenameWithoutExt("/x/ndvi_20240315.tif") != "ndvi_20240315" {
		t.Fatal()
	}
}
