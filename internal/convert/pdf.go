package convert

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFConverter struct{}

// Convert extracts the plain text of every page. Pages are separated by a
// paragraph break so the segmenter can prefer page edges.
func (PDFConverter) Convert(ctx context.Context, raw []byte) (res Result, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Result{}, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	pages := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			return Result{}, fmt.Errorf("page %d: %w", i, err)
		}
		if t := strings.TrimSpace(txt); t != "" {
			pages = append(pages, t)
		}
	}

	return Result{
		Text:        normalize(strings.Join(pages, "\n\n")),
		ContentType: "application/pdf",
		PageCount:   n,
	}, nil
}
