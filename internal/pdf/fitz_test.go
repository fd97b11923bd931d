package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// samplePDF は pages 枚の 1 インチ四方のページを持つ最小構成のPDFを組み立てます。
func samplePDF(pages int) []byte {
	var buf bytes.Buffer
	offsets := []int{}
	addObject := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")
	addObject("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, 0, pages)
	for i := 0; i < pages; i++ {
		kids = append(kids, fmt.Sprintf("%d 0 R", 3+i*2))
	}
	addObject(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), pages))

	for i := 0; i < pages; i++ {
		content := fmt.Sprintf("0 0 1 rg %d 10 40 40 re f", 10+i)
		addObject(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] /Resources << >> /Contents %d 0 R >>", 4+i*2))
		addObject(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func writeSamplePDF(t *testing.T, pages int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.pdf")
	if err := os.WriteFile(path, samplePDF(pages), 0o644); err != nil {
		t.Fatalf("failed to write sample pdf: %v", err)
	}
	return path
}

func TestFitzConverterRendersPagesInOrder(t *testing.T) {
	for _, format := range []Format{FormatJPG, FormatPNG} {
		t.Run(string(format), func(t *testing.T) {
			src := writeSamplePDF(t, 2)
			dest := t.TempDir()

			var pages []Page
			err := NewFitzConverter().Convert(context.Background(), Request{
				Source:  src,
				DestDir: dest,
				Format:  format,
				Quality: 80,
				Density: 72,
			}, func(p Page) error {
				pages = append(pages, p)
				return nil
			})
			if err != nil {
				t.Fatalf("Convert returned error: %v", err)
			}
			if len(pages) != 2 {
				t.Fatalf("expected 2 pages, got %d", len(pages))
			}

			for i, p := range pages {
				want := fmt.Sprintf("page.%d.%s", i+1, format.Ext())
				if p.Index != i+1 || filepath.Base(p.Path) != want {
					t.Fatalf("page %d: got index=%d path=%s, want %s", i, p.Index, p.Path, want)
				}
				if filepath.Dir(p.Path) != dest {
					t.Fatalf("page written outside dest dir: %s", p.Path)
				}
				info, err := os.Stat(p.Path)
				if err != nil {
					t.Fatalf("stat %s: %v", p.Path, err)
				}
				if info.Size() == 0 || info.Size() != p.Size {
					t.Fatalf("page %d: size=%d reported=%d", i+1, info.Size(), p.Size)
				}
			}

			entries, err := os.ReadDir(dest)
			if err != nil {
				t.Fatalf("read dest: %v", err)
			}
			for _, e := range entries {
				if strings.HasSuffix(e.Name(), ".tmp") {
					t.Fatalf("temporary file left behind: %s", e.Name())
				}
			}
			if len(entries) != 2 {
				t.Fatalf("expected 2 files in dest, got %d", len(entries))
			}
		})
	}
}

func TestFitzConverterStopsWhenHandlerFails(t *testing.T) {
	src := writeSamplePDF(t, 3)
	stop := errors.New("registry unavailable")

	calls := 0
	err := NewFitzConverter().Convert(context.Background(), Request{
		Source: src, DestDir: t.TempDir(), Format: FormatJPG, Quality: 90, Density: 36,
	}, func(p Page) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected conversion to stop after first page, got %d calls", calls)
	}
}

func TestFitzConverterHonorsCanceledContext(t *testing.T) {
	src := writeSamplePDF(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFitzConverter().Convert(ctx, Request{
		Source: src, DestDir: t.TempDir(), Format: FormatJPG, Quality: 90, Density: 72,
	}, func(Page) error {
		t.Fatal("no page should be emitted after cancel")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFitzConverterRejectsUnreadableSource(t *testing.T) {
	src := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(src, []byte("not a pdf at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := NewFitzConverter().Convert(context.Background(), Request{
		Source: src, DestDir: t.TempDir(), Format: FormatJPG, Quality: 90, Density: 72,
	}, nil)
	if err == nil {
		t.Fatal("expected error for non-pdf input")
	}
}
