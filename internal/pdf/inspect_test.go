package pdf

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func buildFileHeader(t *testing.T, field, filename string, data []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("failed to read form: %v", err)
	}
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File[field][0]
}

func TestUploaderRejectsNonPDF(t *testing.T) {
	dir := t.TempDir()
	uploader := NewUploader(dir, 1<<20, 0)
	header := buildFileHeader(t, "pdf", "notes.pdf", []byte("just some text, not a pdf"))

	_, err := uploader.Store(context.Background(), header)
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Code != "INVALID_FILE_TYPE" {
		t.Fatalf("unexpected code: %s", apiErr.Code)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read upload dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload should be removed, found %d entries", len(entries))
	}
}

func TestUploaderRejectsOversizedFile(t *testing.T) {
	uploader := NewUploader(t.TempDir(), 8, 0)
	header := buildFileHeader(t, "pdf", "big.pdf", []byte("%PDF-1.4 too large for the limit"))

	_, err := uploader.Store(context.Background(), header)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "LIMIT_EXCEEDED" {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}
}

func TestUploaderRejectsNilFile(t *testing.T) {
	uploader := NewUploader(t.TempDir(), 0, 0)
	if _, err := uploader.Store(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil file")
	}
}

func TestUploaderStoreFileKeepsOriginal(t *testing.T) {
	src := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(src, []byte("not a pdf either"), 0o644); err != nil {
		t.Fatalf("failed to write source: %v", err)
	}
	dir := t.TempDir()
	uploader := NewUploader(dir, 1<<20, 0)

	_, err := uploader.StoreFile(context.Background(), src)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_FILE_TYPE" {
		t.Fatalf("expected INVALID_FILE_TYPE, got %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("original file must be kept: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("rejected copy should be removed, found %d entries", len(entries))
	}
}

func TestUploaderStoreFileRejectsDirectory(t *testing.T) {
	uploader := NewUploader(t.TempDir(), 0, 0)
	_, err := uploader.StoreFile(context.Background(), t.TempDir())
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "INVALID_INPUT" {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestUploaderStoreAcceptsPDF(t *testing.T) {
	dir := t.TempDir()
	uploader := NewUploader(dir, 1<<20, 10)
	uploader.now = func() time.Time { return time.UnixMilli(1760745600123) }
	data := samplePDF(2)
	header := buildFileHeader(t, "pdf", "report.pdf", data)

	stored, err := uploader.Store(context.Background(), header)
	if err != nil {
		t.Fatalf("Store returned error: %v", err)
	}
	if stored.Meta.Pages != 2 {
		t.Fatalf("expected 2 pages, got %d", stored.Meta.Pages)
	}
	if stored.Meta.Name != "report.pdf" {
		t.Fatalf("unexpected name: %s", stored.Meta.Name)
	}
	if stored.Meta.Size != int64(len(data)) {
		t.Fatalf("size = %d, want %d", stored.Meta.Size, len(data))
	}

	if filepath.Dir(stored.Path) != dir {
		t.Fatalf("stored outside upload dir: %s", stored.Path)
	}
	base := filepath.Base(stored.Path)
	if !strings.HasSuffix(base, "-1760745600123.pdf") {
		t.Fatalf("unexpected stored name: %s", base)
	}
	if _, err := uuid.Parse(strings.TrimSuffix(base, "-1760745600123.pdf")); err != nil {
		t.Fatalf("stored name must start with a uuid: %s", base)
	}

	saved, err := os.ReadFile(stored.Path)
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if !bytes.Equal(saved, data) {
		t.Fatal("stored content differs from upload")
	}
}

func TestUploaderStoreFileAcceptsPDF(t *testing.T) {
	src := writeSamplePDF(t, 3)
	uploader := NewUploader(t.TempDir(), 0, 0)

	stored, err := uploader.StoreFile(context.Background(), src)
	if err != nil {
		t.Fatalf("StoreFile returned error: %v", err)
	}
	if stored.Meta.Pages != 3 || stored.Meta.Name != "sample.pdf" {
		t.Fatalf("unexpected meta: %+v", stored.Meta)
	}
	if stored.Path == src {
		t.Fatal("StoreFile must copy, not reuse the original path")
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("original file must be kept: %v", err)
	}
}

func TestUploaderRejectsTooManyPages(t *testing.T) {
	dir := t.TempDir()
	uploader := NewUploader(dir, 1<<20, 1)
	header := buildFileHeader(t, "pdf", "two.pdf", samplePDF(2))

	_, err := uploader.Store(context.Background(), header)
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Code != "LIMIT_EXCEEDED" {
		t.Fatalf("expected LIMIT_EXCEEDED, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("rejected upload should be removed, found %d entries", len(entries))
	}
}
