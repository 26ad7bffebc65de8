package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileCache 把上传的原始文件落到 <root>/files/<name>。
// 同名文件会被覆盖；写入通过临时文件 + rename 完成，读者不会看到半截文件。
type FileCache struct {
	root string
}

// NewFileCache 创建缓存目录（若不存在）。
func NewFileCache(root string) (*FileCache, error) {
	if root == "" {
		root = ".cache"
	}
	if err := os.MkdirAll(filepath.Join(root, "files"), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create cache dir: %w", ErrStorage, err)
	}
	return &FileCache{root: root}, nil
}

// Root returns the cache root directory.
func (c *FileCache) Root() string { return c.root }

// Path 返回 name 对应的缓存路径，只取 name 的最后一段以防目录穿越。
func (c *FileCache) Path(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid file name %q", ErrStorage, name)
	}
	return filepath.Join(c.root, "files", base), nil
}

// Write 保存 data 并返回最终路径。
func (c *FileCache) Write(name string, data []byte) (string, error) {
	path, err := c.Path(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: create temp file: %w", ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: write %s: %w", ErrStorage, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: close %s: %w", ErrStorage, name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("%w: rename %s: %w", ErrStorage, name, err)
	}
	return path, nil
}
