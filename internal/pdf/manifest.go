package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestFilename はジョブディレクトリに置く目録のファイル名です。
const ManifestFilename = "manifest.json"

// Manifest は変換済みジョブの目録です。
type Manifest struct {
	JobID            string         `json:"jobId"`
	OriginalFilename string         `json:"originalFilename,omitempty"`
	Format           Format         `json:"format"`
	Quality          int            `json:"quality"`
	Density          int            `json:"density"`
	Pages            []ManifestPage `json:"pages"`
	CreatedAt        time.Time      `json:"createdAt"`
	CompletedAt      time.Time      `json:"completedAt"`
}

// ManifestPage は目録に載せる1ページです。
type ManifestPage struct {
	PageNumber int    `json:"pageNumber"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
}

// WriteManifest は目録を dir に書き出します。一時ファイルに書いてから置き換えます。
func WriteManifest(dir string, manifest *Manifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	path := filepath.Join(dir, ManifestFilename)
	tmp := path + ".tmp"

	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	encErr := enc.Encode(manifest)
	if closeErr := file.Close(); encErr == nil {
		encErr = closeErr
	}
	if encErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write manifest: %w", encErr)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace manifest: %w", err)
	}
	return nil
}
