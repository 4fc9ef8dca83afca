package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildText produces deterministic sentence-shaped text of roughly n bytes.
func buildText(n int) string {
	var b strings.Builder
	words := []string{"meeple", "worker", "placement", "victory", "points", "tile", "draft", "score"}
	i := 0
	for b.Len() < n {
		b.WriteString(words[i%len(words)])
		i++
		if i%9 == 0 {
			b.WriteString(". ")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()[:n]
}

func TestPrepare_EmptyText(t *testing.T) {
	c := New(512, 50, 3000)
	assert.Empty(t, c.Prepare(""))
}

func TestPrepare_ShortText(t *testing.T) {
	c := New(512, 50, 3000)
	chunks := c.Prepare("Two players take turns.")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Two players take turns.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, 23, chunks[0].CharEnd)
	assert.Equal(t, 1, chunks[0].Page)
}

func TestPrepare_WhitespaceOnlyTailDropped(t *testing.T) {
	c := New(10, 2, 3000)
	text := "abcdefgh" + strings.Repeat(" ", 20)
	chunks := c.Prepare(text)
	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.NotEqual(t, "", strings.TrimSpace(last.Text), "tail chunk must not be whitespace-only")
}

func TestPrepare_SoundnessProperties(t *testing.T) {
	cases := []struct {
		name    string
		size    int
		overlap int
		textLen int
	}{
		{"defaults", 512, 50, 10000},
		{"small windows", 64, 16, 2000},
		{"tight overlap", 100, 99, 1500},
		{"single page", 512, 50, 400},
		{"no sentence breaks", 50, 10, 777},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			text := buildText(tc.textLen)
			if tc.name == "no sentence breaks" {
				text = strings.Repeat("x", tc.textLen)
			}
			c := New(tc.size, tc.overlap, 3000)
			chunks := c.Prepare(text)
			require.NotEmpty(t, chunks)

			for i, ch := range chunks {
				assert.LessOrEqual(t, len(ch.Text), tc.size, "chunk %d exceeds size", i)
				assert.NotEmpty(t, ch.Text, "chunk %d is empty", i)
				assert.Equal(t, i, ch.Index)
				assert.Equal(t, text[ch.CharStart:ch.CharEnd], ch.Text,
					"chunk %d is not the exact substring of its offsets", i)
			}

			// Consecutive chunks share exactly the overlap region.
			for i := 1; i < len(chunks); i++ {
				prev, cur := chunks[i-1], chunks[i]
				assert.Equal(t, prev.CharEnd-c.overlap, cur.CharStart,
					"chunk %d does not start overlap bytes before predecessor end", i)
				assert.Equal(t,
					prev.Text[len(prev.Text)-c.overlap:],
					cur.Text[:c.overlap],
					"chunk %d overlap bytes differ", i)
			}

			// Concatenating with the overlap stripped reproduces the input
			// (modulo a dropped whitespace-only tail).
			var b strings.Builder
			b.WriteString(chunks[0].Text)
			for i := 1; i < len(chunks); i++ {
				b.WriteString(chunks[i].Text[c.overlap:])
			}
			rebuilt := b.String()
			assert.Equal(t, strings.TrimRight(text, " \t\n"), strings.TrimRight(rebuilt, " \t\n"))
		})
	}
}

func TestPrepare_ChunkCountForTenThousandChars(t *testing.T) {
	c := New(512, 50, 3000)
	chunks := c.Prepare(buildText(10000))
	// Stride is roughly size-overlap, so expect about 21 chunks.
	assert.InDelta(t, 21, len(chunks), 3)
}

func TestPrepare_PageEstimationByCharsPerPage(t *testing.T) {
	c := New(100, 10, 250)
	chunks := c.Prepare(buildText(1000))
	require.NotEmpty(t, chunks)
	assert.Equal(t, 1, chunks[0].Page)
	last := chunks[len(chunks)-1]
	assert.Equal(t, last.CharStart/250+1, last.Page)
}

func TestPrepare_PageEstimationByFormFeed(t *testing.T) {
	page1 := buildText(300)
	page2 := buildText(300)
	text := page1 + "\f" + page2
	c := New(200, 20, 3000)
	chunks := c.Prepare(text)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 1, chunks[0].Page)
	last := chunks[len(chunks)-1]
	assert.Equal(t, 2, last.Page, "chunks after the form feed report page 2")
}

func TestPrepare_PrefersSentenceBoundary(t *testing.T) {
	text := "First sentence ends here. Second sentence is quite a bit longer than the first one."
	c := New(40, 5, 3000)
	chunks := c.Prepare(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."),
		"first chunk should cut after the sentence terminator, got %q", chunks[0].Text)
}
