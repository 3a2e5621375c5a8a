package utils

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const (
	FILE_EXT_TIF  = ".tif"
	FILE_EXT_TIFF = ".tiff"
)

func GetFilenameWithoutExt(path string) (name string) {
	name = filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(path))
	return
}

// 没有文件路径的栅格用随机key标识
func NewRasterKey() string {
	return "mem-" + uuid.NewString()
}

func hasExt(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// 递归列出dir下指定扩展名的文件，返回相对dir的路径，已排序；dir不存在时返回空
func ListFiles(dir string, exts ...string) (files []string, err error) {
	if _, err = os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			err = nil
		}
		return
	}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, e error) error {
		if e != nil {
			return e
		}
		if d.IsDir() || !hasExt(path, exts) {
			return nil
		}
		rel, e := filepath.Rel(dir, path)
		if e != nil {
			return e
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return
}

func ListRasterFiles(dir string) ([]string, error) {
	return ListFiles(dir, FILE_EXT_TIF, FILE_EXT_TIFF)
}
