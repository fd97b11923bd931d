package pdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/yourusername/pdf2img/internal/config"
)

// Request は1回の変換に必要な入力です。
type Request struct {
	Source  string
	DestDir string
	Format  Format
	Quality int
	Density int
}

// Page は変換済みの1ページです。Index は1始まり。
type Page struct {
	Index int
	Path  string
	Size  int64
}

// PageHandler はページが1枚書き出されるたびに呼ばれます。エラーを返すと変換を中断します。
type PageHandler func(Page) error

// Converter はPDFを画像へ変換する外部処理を表します。
// ページは元の順序どおり emit に渡されます。
type Converter interface {
	Convert(ctx context.Context, req Request, emit PageHandler) error
}

// NewConverter は設定に応じた Converter を返します。
func NewConverter(cfg *config.Config) (Converter, error) {
	switch strings.ToLower(cfg.Converter) {
	case "", "fitz":
		return NewFitzConverter(), nil
	case "ghostscript":
		return NewGhostscriptConverter(cfg.GhostscriptPath), nil
	default:
		return nil, fmt.Errorf("unsupported converter: %s", cfg.Converter)
	}
}

func pageFilename(index int, format Format) string {
	return fmt.Sprintf("page.%d.%s", index, format.Ext())
}
