//go:build !integration

package research

import (
	"strings"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Go is fast. It compiles quickly! Does it scale? Yes. version 1.24 is out.")
	want := []string{"Go is fast.", "It compiles quickly!", "Does it scale?", "Yes. version 1.24 is out."}
	if len(got) != len(want) {
		t.Fatalf("expected %d sentences, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestChunker_RespectsBudgetAndOrder(t *testing.T) {
	c := NewChunker(15)
	var sentences []string
	for i := 0; i < 30; i++ {
		sentences = append(sentences, "The quick brown fox jumps over the lazy dog.")
	}
	text := strings.Join(sentences, " ")

	chunks := c.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected text to be split, got %d chunk(s)", len(chunks))
	}
	for i, ch := range chunks {
		if n := c.tokens(ch); n > 15 {
			t.Errorf("chunk %d has %d tokens, budget is 15", i, n)
		}
	}
	if joined := strings.Join(chunks, " "); joined != text {
		t.Error("chunks do not reassemble the original text in order")
	}
}

func TestChunker_HardSplitsLongSentence(t *testing.T) {
	c := NewChunker(8)
	long := strings.Repeat("lorem ipsum dolor sit amet ", 20)

	chunks := c.Split(long)
	if len(chunks) < 2 {
		t.Fatalf("expected an overlong sentence to be split, got %d chunk(s)", len(chunks))
	}
	for _, ch := range chunks {
		if strings.TrimSpace(ch) == "" {
			t.Error("empty chunk emitted")
		}
	}
}

func TestChunker_EmptyText(t *testing.T) {
	if chunks := NewChunker(10).Split("   "); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %q", chunks)
	}
}
