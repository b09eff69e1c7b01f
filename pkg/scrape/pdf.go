package scrape

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/pkg/errors"
)

const maxPDFBytes = 25 << 20

// PDFExtractor downloads a PDF and returns its plain text.
type PDFExtractor struct {
	client *http.Client
}

func NewPDFExtractor(timeout time.Duration) *PDFExtractor {
	return &PDFExtractor{client: &http.Client{Timeout: timeout}}
}

func (p *PDFExtractor) Extract(ctx context.Context, url string) (string, error) {
	b, err := fetch(ctx, p.client, pdfURL(url), maxPDFBytes)
	if err != nil {
		return "", err
	}
	return ExtractPDFText(b)
}

// ExtractPDFText returns the text of every page of an in-memory PDF.
func ExtractPDFText(b []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", errors.Wrap(err, "could not open pdf")
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", errors.Wrap(err, "could not extract pdf text")
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", errors.Wrap(err, "could not read pdf text")
	}
	return CollapseWhitespace(string(out)), nil
}

// pdfURL maps arXiv abstract pages to the matching PDF.
func pdfURL(url string) string {
	if strings.Contains(strings.ToLower(url), "arxiv.org/abs/") {
		return strings.Replace(url, "/abs/", "/pdf/", 1)
	}
	return url
}
