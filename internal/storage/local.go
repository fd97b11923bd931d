// Package storage はジョブ成果物のローカル保存を扱います。
//
// 保存先: <outputRoot>/<jobID>/page.<n>.<ext>
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideDir は対象ファイルがジョブディレクトリの外を指すときに返ります。
var ErrOutsideDir = errors.New("path escapes job directory")

// FileInfo は登録済みファイルの情報です。
type FileInfo struct {
	Name string
	Path string
	Size int64
}

// DirEntry は出力ルート直下のディレクトリです。
type DirEntry struct {
	Name    string
	Path    string
	ModTime time.Time
}

// Local はローカルファイルシステム上の成果物ストアです。
// ジョブごとに別ディレクトリを使うため、異なるジョブからの同時呼び出しは干渉しません。
type Local struct {
	root string
}

// NewLocal は Local を作成します。
func NewLocal(root string) *Local {
	return &Local{root: root}
}

// Root は出力ルートを返します。
func (l *Local) Root() string {
	return l.root
}

// JobDir は outputRoot 配下のジョブディレクトリを返します。outputRoot が空なら既定のルートを使います。
func (l *Local) JobDir(outputRoot, jobID string) string {
	if outputRoot == "" {
		outputRoot = l.root
	}
	return filepath.Join(outputRoot, jobID)
}

// JobDirs は出力ルート直下のディレクトリを返します。ルートが無ければ空です。
func (l *Local) JobDirs() ([]DirEntry, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", l.root, err)
	}
	dirs := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// 列挙中に消えたものは対象外
			continue
		}
		dirs = append(dirs, DirEntry{
			Name:    e.Name(),
			Path:    filepath.Join(l.root, e.Name()),
			ModTime: info.ModTime(),
		})
	}
	return dirs, nil
}

// EnsureDir はディレクトリを作成します（既に存在してもエラーにしません）。
func (l *Local) EnsureDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}

// Register は dir 直下に書き込まれたファイルを成果物として登録し、サイズを返します。
func (l *Local) Register(dir, path string) (*FileInfo, error) {
	name := filepath.Base(path)
	resolved, err := l.Resolve(dir, name)
	if err != nil {
		return nil, err
	}
	if filepath.Clean(path) != resolved {
		return nil, fmt.Errorf("%w: %s", ErrOutsideDir, path)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", resolved, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", resolved)
	}
	return &FileInfo{
		Name: name,
		Path: resolved,
		Size: info.Size(),
	}, nil
}

// Resolve は dir 直下の name を指すパスを返します。区切り文字や ".." を含む名前は拒否します。
func (l *Local) Resolve(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}
	if strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}
	cleanDir := filepath.Clean(dir)
	full := filepath.Join(cleanDir, name)
	if filepath.Dir(full) != cleanDir {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}
	return full, nil
}

// Exists はファイルが存在するかを返します。
func (l *Local) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove はディレクトリを再帰的に削除します。存在しない場合もエラーにしません。
func (l *Local) Remove(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	return nil
}

// RemoveFile は単一ファイルを削除します。存在しない場合もエラーにしません。
func (l *Local) RemoveFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}
