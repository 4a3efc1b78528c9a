package files

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ImagePlaceholder stands in for text of image uploads; no OCR engine is
// bundled.
const ImagePlaceholder = "[Image file - OCR not available]"

var errNoText = errors.New("no text found")

// ExtractText returns the text content of a stored file. Failures are
// logged and reported as ok=false.
func (s *Service) ExtractText(path string) (string, bool) {
	text, err := extract(path)
	if err != nil {
		if !errors.Is(err, errNoText) {
			s.logger.Error("text extraction failed", "path", path, "err", err)
		}
		return "", false
	}
	return text, true
}

// Preview returns at most maxChars characters of the file's text, with an
// ellipsis when truncated.
func (s *Service) Preview(path string, maxChars int) (string, bool) {
	text, ok := s.ExtractText(path)
	if !ok {
		return "", false
	}
	return Truncate(text, maxChars), true
}

// Truncate cuts text to maxChars characters, appending "..." when it was
// longer.
func Truncate(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	return string([]rune(text)[:maxChars]) + "..."
}

func extract(path string) (string, error) {
	switch Extension(path) {
	case "txt", "md":
		return extractPlain(path)
	case "pdf":
		return extractPDF(path)
	case "docx":
		return extractDOCX(path)
	case "png", "jpg", "jpeg", "gif", "webp":
		return ImagePlaceholder, nil
	case "json":
		return extractJSON(path)
	default:
		return "", errNoText
	}
}

func extractPlain(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.ToValidUTF8(string(b), ""), nil
}

func extractJSON(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, b, "", "  "); err != nil {
		return "", fmt.Errorf("invalid json: %w", err)
	}
	return out.String(), nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read page %d: %w", i, err)
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return nonEmpty(b.String())
}

// extractDOCX joins the paragraphs of word/document.xml, one per line.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		text, err := docxParagraphs(rc)
		if err != nil {
			return "", err
		}
		return nonEmpty(text)
	}
	return "", errors.New("docx has no document body")
}

func docxParagraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		paragraphs []string
		current    strings.Builder
		inText     bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse docx: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				current.WriteString("\t")
			case "br":
				current.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return strings.Join(paragraphs, "\n"), nil
}

func nonEmpty(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errNoText
	}
	return text, nil
}
