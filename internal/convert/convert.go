package convert

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"ragpipe/internal/domain"
)

var ErrUnsupported = errors.New("unsupported content type")

// Result is the plain text extracted from one source file.
type Result struct {
	Text        string
	ContentType string
	PageCount   int
}

type Converter interface {
	Convert(ctx context.Context, raw []byte) (Result, error)
}

// Registry picks a converter by file extension first and falls back to the
// detected MIME type.
type Registry struct {
	byExt  map[string]Converter
	byMIME map[string]Converter
	now    func() time.Time
}

func NewRegistry() *Registry {
	r := &Registry{
		byExt:  map[string]Converter{},
		byMIME: map[string]Converter{},
		now:    time.Now,
	}
	pdf := PDFConverter{}
	md := MarkdownConverter{}
	txt := PlainTextConverter{}

	r.Register(pdf, []string{".pdf"}, "application/pdf")
	r.Register(md, []string{".md", ".markdown"}, "text/markdown")
	r.Register(txt, []string{".txt", ".text"}, "text/plain")
	return r
}

func (r *Registry) Register(c Converter, exts []string, mimes ...string) {
	for _, e := range exts {
		r.byExt[strings.ToLower(e)] = c
	}
	for _, m := range mimes {
		r.byMIME[m] = c
	}
}

// Convert turns raw bytes named name into plain text.
func (r *Registry) Convert(ctx context.Context, name string, raw []byte) (Result, error) {
	c, err := r.lookup(name, raw)
	if err != nil {
		return Result{}, &domain.ConversionError{Path: name, Err: err}
	}
	res, err := c.Convert(ctx, raw)
	if err != nil {
		return Result{}, &domain.ConversionError{Path: name, Err: err}
	}
	return res, nil
}

func (r *Registry) lookup(name string, raw []byte) (Converter, error) {
	if c, ok := r.byExt[strings.ToLower(filepath.Ext(name))]; ok {
		return c, nil
	}
	detected := mimetype.Detect(raw)
	for m := detected; m != nil; m = m.Parent() {
		base, _, _ := strings.Cut(m.String(), ";")
		if c, ok := r.byMIME[base]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, detected.String())
}

// Load reads the file at path (relative to root) and converts it into a
// Document whose id is the slash-separated relative path.
func (r *Registry) Load(ctx context.Context, root, path string) (domain.Document, error) {
	full := path
	if !filepath.IsAbs(path) {
		full = filepath.Join(root, path)
	}
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return domain.Document{}, &domain.ConversionError{Path: path, Err: err}
	}
	id := filepath.ToSlash(rel)

	raw, err := os.ReadFile(full) // #nosec G304 -- paths come from the operator's ingest root
	if err != nil {
		return domain.Document{}, &domain.ConversionError{Path: id, Err: err}
	}
	res, err := r.Convert(ctx, id, raw)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{
		ID:          id,
		Path:        full,
		Text:        res.Text,
		ContentType: res.ContentType,
		PageCount:   res.PageCount,
		ContentHash: Hash(res.Text),
		ConvertedAt: r.now().UTC(),
	}, nil
}

// Hash is the content revision used to detect unchanged documents and to
// tag vector records of one ingestion.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// normalize unifies line endings and trims trailing space on every line.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ToValidUTF8(s, "")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	s = strings.Join(lines, "\n")
	s = blankRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
