package extraction

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/logger"
)

// Engine derives a best-effort (amount, date, description) tuple from raw
// document bytes. Implementations never fail: unreadable or malformed input
// degrades to default values. Real OCR/NLP capabilities can be swapped in
// behind this interface without touching the pipeline.
type Engine interface {
	Extract(ctx context.Context, content []byte, filename string) model.ExtractionResult
}

const (
	// stubAmount is used when content is present but carries no
	// currency-shaped value.
	stubAmount = 100.0

	maxDescriptionLen = 140
)

var (
	amountPattern    = regexp.MustCompile(`\d+[.,]\d{2}`)
	isoDatePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	slashDatePattern = regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)
)

// RegexEngine is the placeholder extraction capability: a handful of
// currency/date heuristics over the text content.
type RegexEngine struct{}

func NewRegexEngine() *RegexEngine {
	return &RegexEngine{}
}

func (e *RegexEngine) Extract(_ context.Context, content []byte, filename string) model.ExtractionResult {
	res := model.ExtractionResult{
		Amount:          0,
		TransactionDate: today(),
		Description:     filenameStem(filename),
	}

	if len(content) == 0 {
		// Missing blob or empty upload: nothing to scan.
		return res
	}

	text := string(content)

	res.Amount = stubAmount
	if m := amountPattern.FindString(text); m != "" {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", "."), 64); err == nil {
			res.Amount = v
		}
	}

	res.TransactionDate = extractDate(text)

	if line := firstNonEmptyLine(text); line != "" {
		res.Description = truncate(line, maxDescriptionLen)
	}

	return res
}

func extractDate(text string) time.Time {
	if m := isoDatePattern.FindString(text); m != "" {
		if d, err := time.Parse("2006-01-02", m); err == nil {
			return d
		}
	}
	if m := slashDatePattern.FindString(text); m != "" {
		if d, err := time.Parse("02/01/2006", m); err == nil {
			return d
		}
	}
	return today()
}

func firstNonEmptyLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func filenameStem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// RemoteExtractor is the optional out-of-process extraction capability. It
// may fail; FallbackEngine keeps the never-fails contract by degrading to a
// local engine.
type RemoteExtractor interface {
	Extract(ctx context.Context, content []byte, filename string) (model.ExtractionResult, error)
}

type FallbackEngine struct {
	remote RemoteExtractor
	local  Engine
}

func NewFallbackEngine(remote RemoteExtractor, local Engine) *FallbackEngine {
	return &FallbackEngine{
		remote: remote,
		local:  local,
	}
}

func (e *FallbackEngine) Extract(ctx context.Context, content []byte, filename string) model.ExtractionResult {
	if e.remote != nil {
		res, err := e.remote.Extract(ctx, content, filename)
		if err == nil {
			return res
		}
		logger.Warn("remote extraction failed, using local engine", "filename", filename, "error", err)
	}
	return e.local.Extract(ctx, content, filename)
}
