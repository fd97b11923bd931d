package pdf

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// SourceFileMeta はアップロードされたPDFの基本メタデータです。
type SourceFileMeta struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages"`
}

// StoredUpload は保存済みのアップロードファイルです。
type StoredUpload struct {
	Path string
	Meta SourceFileMeta
}

// Uploader はアップロードされたPDFを検査して保存します。
type Uploader struct {
	dir      string
	maxSize  int64
	maxPages int
	now      func() time.Time
}

// NewUploader は Uploader を作成します。
func NewUploader(dir string, maxSize int64, maxPages int) *Uploader {
	return &Uploader{
		dir:      dir,
		maxSize:  maxSize,
		maxPages: maxPages,
		now:      time.Now,
	}
}

// Store は multipart のファイルを <uuid>-<unix>.pdf として保存し、PDFであることを確認します。
// 検査に失敗した場合は保存したファイルを削除します。
func (u *Uploader) Store(ctx context.Context, file *multipart.FileHeader) (*StoredUpload, error) {
	if file == nil {
		return nil, newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}
	if err := u.checkSize(file.Size); err != nil {
		return nil, err
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	return u.save(ctx, file.Filename, src)
}

// StoreFile はローカルのPDFをアップロード先へ複製します。元のファイルには触れません。
func (u *Uploader) StoreFile(ctx context.Context, path string) (*StoredUpload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, newError("INVALID_INPUT", fmt.Sprintf("ファイルを開けません: %s", path), err)
	}
	if info.IsDir() {
		return nil, newError("INVALID_INPUT", fmt.Sprintf("ディレクトリは変換できません: %s", path), nil)
	}
	if err := u.checkSize(info.Size()); err != nil {
		return nil, err
	}

	src, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	return u.save(ctx, filepath.Base(path), src)
}

func (u *Uploader) checkSize(size int64) error {
	if u.maxSize > 0 && size > u.maxSize {
		return newError("LIMIT_EXCEEDED", fmt.Sprintf("ファイルサイズが上限（%dMB）を超えています。", u.maxSize/1024/1024), nil)
	}
	return nil
}

func (u *Uploader) save(ctx context.Context, name string, src io.Reader) (*StoredUpload, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(u.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}

	storedName := fmt.Sprintf("%s-%d.pdf", uuid.NewString(), u.now().UnixMilli())
	path := filepath.Join(u.dir, storedName)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}

	reader := src
	if u.maxSize > 0 {
		reader = io.LimitReader(src, u.maxSize+1)
	}
	written, copyErr := io.Copy(dst, reader)
	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to save upload: %w", copyErr)
	}
	if err := u.checkSize(written); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	pages, err := u.inspect(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	return &StoredUpload{
		Path: path,
		Meta: SourceFileMeta{
			Name:  name,
			Size:  written,
			Pages: pages,
		},
	}, nil
}

func (u *Uploader) inspect(path string) (int, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to detect file type: %w", err)
	}
	if !mtype.Is("application/pdf") {
		return 0, newError("INVALID_FILE_TYPE", "PDFファイルのみアップロードできます。", nil)
	}

	pages, err := pdfapi.PageCountFile(path)
	if err != nil {
		return 0, newError("UNSUPPORTED_PDF", "PDFを読み込めませんでした。", err)
	}
	if u.maxPages > 0 && pages > u.maxPages {
		return 0, newError("LIMIT_EXCEEDED", fmt.Sprintf("ページ数が上限（%dページ）を超えています。", u.maxPages), nil)
	}
	return pages, nil
}
