package chunker

import (
	"regexp"
	"strconv"
	"strings"

	"pdfchat/internal/domain"
)

// SentenceChunker splits each page into sentence-based chunks with overlap.
// Chunks never span pages so every chunk can cite the page it came from.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	var chunks []domain.Chunk
	idx := 0
	for _, page := range document.Pages {
		for _, text := range c.split(page.Text) {
			chunks = append(chunks, domain.Chunk{
				DocumentID: document.ID,
				ChunkID:    document.ID + ":" + strconv.Itoa(idx),
				Text:       text,
				Index:      idx,
				Page:       page.Number,
			})
			idx++
		}
	}
	return chunks, nil
}

func (c *SentenceChunker) split(content string) []string {
	var sentences []string
	last := 0
	for _, loc := range c.splitter.FindAllStringIndex(content, -1) {
		sentences = append(sentences, content[loc[0]:loc[1]])
		last = loc[1]
	}
	// keep a trailing fragment without terminal punctuation
	if rest := strings.TrimSpace(content[last:]); rest != "" && len(sentences) > 0 {
		sentences = append(sentences, rest)
	}
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(content)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.Join(strings.Fields(sentences[i]), " ")
	}

	var out []string
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		out = append(out, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return out
}
