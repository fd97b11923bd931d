package pdf

import (
	"strings"

	"github.com/yourusername/pdf2img/internal/config"
)

// Format は出力画像の形式です。
type Format string

const (
	FormatJPG Format = "jpg"
	FormatPNG Format = "png"
)

// Ext はファイル拡張子（ドットなし）を返します。
func (f Format) Ext() string {
	return string(f)
}

// ContentType は形式に対応する MIME タイプを返します。
func (f Format) ContentType() string {
	if f == FormatPNG {
		return "image/png"
	}
	return "image/jpeg"
}

// ParseFormat は文字列を Format に変換します。"jpeg" は jpg として扱います。
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpg", "jpeg":
		return FormatJPG, true
	case "png":
		return FormatPNG, true
	default:
		return "", false
	}
}

// Options は実際に変換に使うオプションです。
type Options struct {
	Format     Format `json:"format"`
	Quality    int    `json:"quality"`
	Density    int    `json:"density"`
	OutputRoot string `json:"outputRoot"`
}

// Overrides はリクエストごとの指定です。ゼロ値は「指定なし」を表します。
type Overrides struct {
	Format     string `json:"format,omitempty"`
	Quality    int    `json:"quality,omitempty"`
	Density    int    `json:"density,omitempty"`
	OutputRoot string `json:"outputRoot,omitempty"`
}

// DefaultOptions は設定から既定のオプションを作ります。
func DefaultOptions(cfg *config.Config) Options {
	format, ok := ParseFormat(cfg.DefaultFormat)
	if !ok {
		format = FormatJPG
	}
	return Options{
		Format:     format,
		Quality:    cfg.DefaultQuality,
		Density:    cfg.DefaultDensity,
		OutputRoot: cfg.OutputDir,
	}
}

// ResolveOptions は範囲内の指定だけを採用し、それ以外は既定値で埋めます。
// 範囲外の値はエラーにせず黙って既定値に置き換えます。
func ResolveOptions(o Overrides, defaults Options) Options {
	resolved := defaults
	if format, ok := ParseFormat(o.Format); ok {
		resolved.Format = format
	}
	if o.Quality >= config.MinQuality && o.Quality <= config.MaxQuality {
		resolved.Quality = o.Quality
	}
	if o.Density >= config.MinDensity && o.Density <= config.MaxDensity {
		resolved.Density = o.Density
	}
	if root := strings.TrimSpace(o.OutputRoot); root != "" {
		resolved.OutputRoot = root
	}
	return resolved
}
