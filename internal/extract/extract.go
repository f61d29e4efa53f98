// Package extract reads resume files into plain text and the links they
// contain. Failures are logged and reported as empty output.
package extract

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"go.uber.org/zap"

	"github.com/spigell/resume-matcher/internal/logger"
)

var (
	tagsRe       = regexp.MustCompile(`<[^>]+>`)
	spacesRe     = regexp.MustCompile(`[ \t\r\f\v\x{00A0}]+`)
	newlinesRe   = regexp.MustCompile(`\s*\n\s*`)
	urlRe        = regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"')\]]+`)
	relTargetRe  = regexp.MustCompile(`Target="([^"]+)"[^>]*TargetMode="External"|TargetMode="External"[^>]*Target="([^"]+)"`)
	trailingPunc = ".,;:"
)

// Supported lists the file extensions Extract understands.
var Supported = []string{".pdf", ".docx", ".txt"}

type Extractor struct {
	logger *zap.Logger
}

func New(log *zap.Logger) *Extractor {
	return &Extractor{logger: logger.WithFields(log)}
}

// Extract returns the text of the file at path and the external links found
// in it. Unsupported or unreadable files yield ("", nil).
func (e *Extractor) Extract(path string) (text string, links []string) {
	log := e.logger.With(logger.ResumeFields(path, "extract")...)

	defer func() {
		if r := recover(); r != nil {
			log.Warn("text extraction panicked", zap.Any("panic", r))
			text, links = "", nil
		}
	}()

	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".pdf":
		text, links, err = readPDF(path)
	case ".docx":
		text, links, err = readDocx(path)
	case ".txt":
		text, err = readPlain(path)
	default:
		log.Warn("unsupported file format", zap.String("extension", ext))
		return "", nil
	}

	if err != nil {
		log.Warn("text extraction failed", zap.Error(err))
		return "", nil
	}

	text = normalize(text)
	links = cleanLinks(append(links, urlRe.FindAllString(text, -1)...))

	log.Debug("text extracted", zap.Int("text_length", len(text)), zap.Int("links", len(links)))

	return text, links
}

func readPlain(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readPDF(path string) (string, []string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var (
		builder strings.Builder
		links   []string
	)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", nil, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		builder.WriteString(text)
		builder.WriteString("\n")

		annots := page.V.Key("Annots")
		for j := 0; j < annots.Len(); j++ {
			if uri := annots.Index(j).Key("A").Key("URI").Text(); uri != "" {
				links = append(links, uri)
			}
		}
	}

	return builder.String(), links, nil
}

func readDocx(path string) (string, []string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("open docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = strings.ReplaceAll(content, "<w:tab/>", "\t")
	content = tagsRe.ReplaceAllString(content, " ")

	links, err := docxLinks(path)
	if err != nil {
		return "", nil, err
	}

	return unescapeXML(content), links, nil
}

// docxLinks reads external hyperlink targets from the document relationships.
func docxLinks(path string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open docx archive: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/_rels/document.xml.rels" {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open docx relationships: %w", err)
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read docx relationships: %w", err)
		}

		var links []string
		for _, m := range relTargetRe.FindAllStringSubmatch(string(data), -1) {
			target := m[1]
			if target == "" {
				target = m[2]
			}
			links = append(links, unescapeXML(target))
		}
		return links, nil
	}

	return nil, nil
}

var xmlEntities = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")

func unescapeXML(s string) string {
	return xmlEntities.Replace(s)
}

func normalize(s string) string {
	s = spacesRe.ReplaceAllString(s, " ")
	s = newlinesRe.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

// cleanLinks drops mail and phone links, trims trailing punctuation and
// removes duplicates while keeping order.
func cleanLinks(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		link = strings.TrimRight(strings.TrimSpace(link), trailingPunc)
		lower := strings.ToLower(link)
		if link == "" || strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") {
			continue
		}
		if _, ok := seen[lower]; ok {
			continue
		}
		seen[lower] = struct{}{}
		out = append(out, link)
	}
	return out
}
