package research

import (
	"strings"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// Chunker packs sentences into chunks of at most maxTokens tokens. A single
// sentence longer than the budget is split on token boundaries.
type Chunker struct {
	enc       *tiktoken.Tiktoken
	maxTokens int
}

// NewChunker uses the cl100k_base encoding. When the encoding cannot be
// loaded token counts are estimated at four characters per token.
func NewChunker(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		enc = nil
	}
	return &Chunker{enc: enc, maxTokens: maxTokens}
}

func (c *Chunker) tokens(s string) int {
	if c.enc == nil {
		return (len(s) + 3) / 4
	}
	return len(c.enc.Encode(s, nil, nil))
}

func (c *Chunker) Split(text string) []string {
	var chunks []string
	var cur strings.Builder
	curTokens := 0
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curTokens = 0
	}

	for _, sentence := range splitSentences(text) {
		n := c.tokens(sentence)
		if n > c.maxTokens {
			flush()
			chunks = append(chunks, c.splitLong(sentence)...)
			continue
		}
		if curTokens+n > c.maxTokens {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sentence)
		curTokens += n
	}
	flush()
	return chunks
}

func (c *Chunker) splitLong(s string) []string {
	var out []string
	if c.enc == nil {
		step := c.maxTokens * 4
		r := []rune(s)
		for i := 0; i < len(r); i += step {
			end := i + step
			if end > len(r) {
				end = len(r)
			}
			out = append(out, strings.TrimSpace(string(r[i:end])))
		}
		return out
	}
	toks := c.enc.Encode(s, nil, nil)
	for i := 0; i < len(toks); i += c.maxTokens {
		end := i + c.maxTokens
		if end > len(toks) {
			end = len(toks)
		}
		if part := strings.TrimSpace(c.enc.Decode(toks[i:end])); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// splitSentences breaks after . ? or ! when whitespace and an upper-case
// letter follow.
func splitSentences(text string) []string {
	r := []rune(strings.TrimSpace(text))
	var out []string
	start := 0
	for i := 0; i < len(r); i++ {
		if r[i] != '.' && r[i] != '?' && r[i] != '!' {
			continue
		}
		j := i + 1
		for j < len(r) && unicode.IsSpace(r[j]) {
			j++
		}
		if j > i+1 && j < len(r) && unicode.IsUpper(r[j]) {
			out = append(out, strings.TrimSpace(string(r[start:i+1])))
			start = j
			i = j - 1
		}
	}
	if start < len(r) {
		if s := strings.TrimSpace(string(r[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}
