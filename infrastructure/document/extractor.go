// Package document pulls recipient data out of uploaded PDF reports.
package document

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"

	"github.com/menofreact/whatsapp-sending-engine/dispatch/domain"
)

const (
	maxNameLen    = 10
	maxPreviewLen = 100
)

var (
	// 919876543210, +91 98765 43210, 9876543210
	mobilePattern = regexp.MustCompile(`(?:\+91|91)?[\-\s]?[6-9]\d{9}`)

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Name\s*:\s*([A-Za-z\s.]+)`),
		regexp.MustCompile(`(?i)Patient Name\s*:\s*([A-Za-z\s.]+)`),
		regexp.MustCompile(`(?i)Customer Name\s*:\s*([A-Za-z\s.]+)`),
	}
)

// PDFExtractor implements domain.DocumentExtractor for PDF files.
type PDFExtractor struct{}

var _ domain.DocumentExtractor = PDFExtractor{}

func NewPDFExtractor() PDFExtractor {
	return PDFExtractor{}
}

func (PDFExtractor) Extract(ctx context.Context, path string) (domain.Extraction, error) {
	text, err := readText(path)
	if err != nil {
		logrus.WithError(err).Errorf("[DOCUMENT] Failed to parse %s", path)
		return domain.Extraction{}, fmt.Errorf("failed to parse pdf: %w", err)
	}
	return ParseText(text), nil
}

func readText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ParseText applies the mobile and name heuristics to extracted text.
func ParseText(text string) domain.Extraction {
	out := domain.Extraction{TextPreview: truncate(text, maxPreviewLen)}

	if m := mobilePattern.FindString(text); m != "" {
		mobile := normalizeMobile(m)
		out.Mobile = &mobile
	}

	for _, re := range namePatterns {
		match := re.FindStringSubmatch(text)
		if len(match) < 2 {
			continue
		}
		name := strings.TrimSpace(match[1])
		// labels are often followed by ward or bed info on the same line
		if len(name) > maxNameLen {
			name = strings.TrimSpace(name[:maxNameLen])
		}
		if name != "" {
			out.Name = &name
			break
		}
	}
	return out
}

func normalizeMobile(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	switch {
	case len(digits) == 10:
		digits = "91" + digits
	case strings.HasPrefix(digits, "0"):
		digits = "91" + digits[1:]
	}
	if !strings.HasPrefix(digits, "91") {
		digits = "91" + digits
	}
	return digits
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
