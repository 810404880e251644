package parse

import (
	"regexp"
	"strings"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

const (
	defaultMinParagraphLength = 50
	defaultMaxParagraphLength = 2000
)

var (
	blankLineRe = regexp.MustCompile(`\n\s*\n`)
	sentenceRe  = regexp.MustCompile(`[.!?]+\s+`)
)

// TextConfig holds text parser tuning.
type TextConfig struct {
	MinParagraphLength int
	MaxParagraphLength int
}

// TextParser splits plain text into paragraph fragments, merging runs of
// short paragraphs and splitting over-long ones on sentence boundaries.
type TextParser struct {
	minLen int
	maxLen int
}

// NewTextParser creates a text parser with defaults for zero fields.
func NewTextParser(cfg TextConfig) *TextParser {
	if cfg.MinParagraphLength <= 0 {
		cfg.MinParagraphLength = defaultMinParagraphLength
	}
	if cfg.MaxParagraphLength <= 0 {
		cfg.MaxParagraphLength = defaultMaxParagraphLength
	}
	return &TextParser{minLen: cfg.MinParagraphLength, maxLen: cfg.MaxParagraphLength}
}

func (p *TextParser) ContentType() string { return "text" }

func (p *TextParser) CanParse(payload string) bool {
	return strings.TrimSpace(payload) != "" && len(payload) >= p.minLen
}

func (p *TextParser) Parse(payload, resourceID string, metadata map[string]any) (*ParsedResource, error) {
	if payload == "" {
		return nil, kgerrors.Invalid("payload is empty")
	}

	var paragraphs []string
	for _, raw := range blankLineRe.Split(payload, -1) {
		normalized := strings.Join(strings.Fields(raw), " ")
		if normalized != "" {
			paragraphs = append(paragraphs, normalized)
		}
	}

	result := &ParsedResource{
		ResourceID:   resourceID,
		ResourceType: "text",
		Metadata:     metadata,
		Fragments:    []ContentFragment{},
	}

	var buffer []string
	bufferLen := 0

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		p.emit(result, strings.Join(buffer, "\n\n"))
		buffer = nil
		bufferLen = 0
	}

	for _, para := range paragraphs {
		if len(para) < p.minLen {
			// Joined length counts the "\n\n" separators.
			if bufferLen > 0 {
				bufferLen += 2
			}
			buffer = append(buffer, para)
			bufferLen += len(para)
			if bufferLen >= p.minLen {
				flush()
			}
			continue
		}

		flush()
		if len(para) > p.maxLen {
			for _, chunk := range splitLongParagraph(para, p.maxLen) {
				p.emit(result, chunk)
			}
		} else {
			p.emit(result, para)
		}
	}
	flush()

	return result, nil
}

func (p *TextParser) emit(result *ParsedResource, content string) {
	result.Fragments = append(result.Fragments, ContentFragment{
		Content: content,
		Type:    "paragraph",
		Order:   len(result.Fragments),
		Metadata: map[string]any{
			"length":     len(content),
			"word_count": len(strings.Fields(content)),
		},
	})
}

// splitLongParagraph packs sentences greedily into chunks of at most
// maxLen. A single sentence longer than maxLen becomes its own chunk.
func splitLongParagraph(para string, maxLen int) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(para, -1) {
		sentences = append(sentences, strings.TrimSpace(para[last:loc[1]]))
		last = loc[1]
	}
	if last < len(para) {
		if rest := strings.TrimSpace(para[last:]); rest != "" {
			sentences = append(sentences, rest)
		}
	}

	var chunks []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxLen {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

var _ Parser = (*TextParser)(nil)
