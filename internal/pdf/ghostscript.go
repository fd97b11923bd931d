package pdf

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// GhostscriptConverter は gs コマンドでページを書き出します。
// gs は全ページを書き終えてから戻るため、ページ通知は最後にまとめて行われます。
type GhostscriptConverter struct {
	path string
}

// NewGhostscriptConverter は GhostscriptConverter を作成します。
func NewGhostscriptConverter(path string) *GhostscriptConverter {
	if path == "" {
		path = "gs"
	}
	return &GhostscriptConverter{path: path}
}

// Convert は gs を実行し、生成されたページをページ番号順に emit へ渡します。
func (c *GhostscriptConverter) Convert(ctx context.Context, req Request, emit PageHandler) error {
	if err := runCommand(ctx, c.path, ghostscriptArgs(req)); err != nil {
		return err
	}

	pages, err := collectPages(req.DestDir, req.Format)
	if err != nil {
		return err
	}
	for _, page := range pages {
		if emit == nil {
			continue
		}
		if err := emit(page); err != nil {
			return err
		}
	}
	return nil
}

func ghostscriptArgs(req Request) []string {
	device := "jpeg"
	if req.Format == FormatPNG {
		device = "png16m"
	}

	args := []string{
		fmt.Sprintf("-sDEVICE=%s", device),
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		"-dSAFER",
		fmt.Sprintf("-r%d", req.Density),
	}
	if req.Format != FormatPNG {
		args = append(args, fmt.Sprintf("-dJPEGQ=%d", req.Quality))
	}
	args = append(args,
		fmt.Sprintf("-sOutputFile=%s", filepath.Join(req.DestDir, "page.%d."+req.Format.Ext())),
		req.Source,
	)
	return args
}

func runCommand(ctx context.Context, path string, args []string) error {
	cmd := exec.CommandContext(ctx, path, args...)
	var stderr bytes.Buffer
	cmd.Stdout = &stderr
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return fmt.Errorf("ghostscript failed: %s", msg)
	}
	return nil
}

// collectPages は dir 内の page.<n>.<ext> をページ番号の昇順で返します。
func collectPages(dir string, format Format) ([]Page, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read output dir: %w", err)
	}

	suffix := "." + format.Ext()
	pages := make([]Page, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "page.") || !strings.HasSuffix(name, suffix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "page."), suffix))
		if err != nil || index < 1 {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		pages = append(pages, Page{
			Index: index,
			Path:  filepath.Join(dir, name),
			Size:  info.Size(),
		})
	}

	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Index < pages[j].Index
	})
	return pages, nil
}
