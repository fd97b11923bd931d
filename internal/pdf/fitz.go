package pdf

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// FitzConverter は MuPDF (go-fitz) でページをラスタライズします。
type FitzConverter struct{}

// NewFitzConverter は FitzConverter を作成します。
func NewFitzConverter() *FitzConverter {
	return &FitzConverter{}
}

// Convert はページを1枚ずつ描画し、書き出すたびに emit を呼びます。
func (c *FitzConverter) Convert(ctx context.Context, req Request, emit PageHandler) error {
	doc, err := fitz.New(req.Source)
	if err != nil {
		return fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	for i := 0; i < pageCount; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		img, err := doc.ImageDPI(i, float64(req.Density))
		if err != nil {
			return fmt.Errorf("failed to render page %d: %w", i+1, err)
		}

		outputPath := filepath.Join(req.DestDir, pageFilename(i+1, req.Format))
		size, err := writeImage(outputPath, img, req.Format, req.Quality)
		if err != nil {
			return fmt.Errorf("failed to write page %d: %w", i+1, err)
		}

		if emit != nil {
			if err := emit(Page{Index: i + 1, Path: outputPath, Size: size}); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeImage は一時ファイルに書いてから rename し、途中までのファイルが見えないようにします。
func writeImage(path string, img image.Image, format Format, quality int) (int64, error) {
	tmp := path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, err
	}

	switch format {
	case FormatPNG:
		err = png.Encode(file, img)
	default:
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: quality})
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
