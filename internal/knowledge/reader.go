package knowledge

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"finvisor/pkg/errors"
	"finvisor/pkg/htmltext"
)

// Supported reports whether ReadFile can extract text from the file
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".htm", ".html", ".xml", ".pdf":
		return true
	}
	return false
}

// ReadFile extracts plain text from a document on disk
func ReadFile(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".pdf" {
		return readPDF(path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", path)
	}

	switch ext {
	case ".htm", ".html":
		page, err := htmltext.Extract(bytes.NewReader(raw))
		if err != nil {
			return "", err
		}
		return page.Text, nil
	case ".xml":
		return htmltext.Text(bytes.NewReader(raw))
	case ".txt", ".md":
		// EDGAR full-text submissions embed HTML documents inside .txt files
		if looksLikeMarkup(raw) {
			return htmltext.Text(bytes.NewReader(raw))
		}
		return string(raw), nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidInput, "unsupported document type %q", ext)
	}
}

func looksLikeMarkup(raw []byte) bool {
	head := bytes.ToLower(raw[:min(len(raw), 2048)])
	return bytes.Contains(head, []byte("<html")) ||
		bytes.Contains(head, []byte("<sec-document")) ||
		bytes.Contains(head, []byte("<document>"))
}

func readPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to open pdf %s", path)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", errors.Wrapf(err, "failed to extract pdf text %s", path)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", errors.Wrap(err, "failed to read pdf text")
	}
	return htmltext.Normalize(buf.String()), nil
}
