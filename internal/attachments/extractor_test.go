package attachments

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

func runExtractor(chunks []string) (string, []ports.Attachment) {
	e := NewExtractor()
	var out strings.Builder
	var atts []ports.Attachment
	for _, c := range chunks {
		text, found := e.Push(c)
		out.WriteString(text)
		atts = append(atts, found...)
	}
	text, found := e.FlushRemainder()
	out.WriteString(text)
	atts = append(atts, found...)
	return out.String(), atts
}

func assertMatchesBatch(t *testing.T, input string, chunks []string) {
	t.Helper()
	wantText, want := Extract(input)
	gotText, got := runExtractor(chunks)
	if gotText != wantText {
		t.Fatalf("chunks %q: got %q, want %q", chunks, gotText, wantText)
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("chunks %q: attachments mismatch (-want +got):\n%s", chunks, diff)
	}
}

var invarianceCorpus = []string{
	"Hello <attachments>\n- /a.pdf\n</attachments> world",
	"abc <attachments>\n- /x",
	"First <attachments>\n- /one.png\n</attachments> middle <attachments>\n- /two.png\n</attachments> last",
	"Here is the report.\n\n<attachments>\n- /data/report.pdf\n- /data/chart.png\n</attachments>\n\nLet me know.",
	"\n<attachments>\n- /in.txt\n</attachments>\n\nHi  ",
	"A\n<attachments>\n- /1\n</attachments>\n<attachments>\n- /2\n</attachments> B",
	"a < b <attach <attachments>\n- /z\n</attachments",
	"a <attachments>\n- /1\n</attachments>\n<attachments>\n- /2",
	"trailing spaces stay   ",
	"x </attachments> <attachments></attachments>y",
	"héllo 世界 <attachments>\n- /文件.pdf\n</attachments> ✓",
	"<<attachments>\n- /dbl\n</</attachments>>",
}

func TestExtractorMatchesBatchForEverySplit(t *testing.T) {
	for _, input := range invarianceCorpus {
		assertMatchesBatch(t, input, []string{input})
		for i := 1; i < len(input); i++ {
			assertMatchesBatch(t, input, []string{input[:i], input[i:]})
			for j := i + 1; j < len(input); j++ {
				assertMatchesBatch(t, input, []string{input[:i], input[i:j], input[j:]})
			}
		}
	}
}

func TestExtractorMatchesBatchByteByByte(t *testing.T) {
	for _, input := range invarianceCorpus {
		chunks := make([]string, 0, len(input))
		for i := 0; i < len(input); i++ {
			chunks = append(chunks, input[i:i+1])
		}
		assertMatchesBatch(t, input, chunks)
	}
}

func TestExtractorMatchesBatchRandomPartitions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var sb strings.Builder
	pieces := []string{"word ", "\n", "  ", "<attachments>\n", "- /f", "\n</attachments>", "<", "</", "é", "- ", "\n\n"}
	for round := 0; round < 300; round++ {
		sb.Reset()
		for n := rng.Intn(20); n >= 0; n-- {
			sb.WriteString(pieces[rng.Intn(len(pieces))])
		}
		input := sb.String()

		var chunks []string
		rest := input
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		assertMatchesBatch(t, input, chunks)
	}
}

func TestExtractorSplitExample(t *testing.T) {
	chunks := []string{"Hello <attach", "ments>\n- /a.p", "df\n</attachm", "ents> world"}
	text, atts := runExtractor(chunks)
	assert.Equal(t, "Hello world", text)
	assert.Equal(t, []ports.Attachment{ports.FileAttachment("/a.pdf")}, atts)
}

func TestExtractorUnterminatedFlushesAsText(t *testing.T) {
	e := NewExtractor()
	text, atts := e.Push("abc <attachments>\n- /x")
	assert.Equal(t, "abc", text)
	assert.Empty(t, atts)
	assert.True(t, e.Capturing())

	rest, atts := e.FlushRemainder()
	assert.Equal(t, " <attachments>\n- /x", rest)
	assert.Empty(t, atts)
	assert.False(t, e.Pending())
}

func TestExtractorEmitsAttachmentsAsSoonAsBlockCloses(t *testing.T) {
	e := NewExtractor()
	text, atts := e.Push("see <attachments>\n- /a\n")
	assert.Equal(t, "see", text)
	assert.Empty(t, atts)

	text, atts = e.Push("</attachments> ok")
	assert.Equal(t, " ok", text)
	assert.Equal(t, []ports.Attachment{ports.FileAttachment("/a")}, atts)
}

func TestExtractorHoldsBackOnlyAmbiguousSuffix(t *testing.T) {
	e := NewExtractor()
	text, _ := e.Push("a <attachme")
	assert.Equal(t, "a", text)
	assert.Equal(t, "<attachme", e.buf)

	text, _ = e.Push("nt is not a tag")
	assert.Equal(t, " <attachment is not a tag", text)
	assert.False(t, e.Capturing())
}

func TestExtractorCloseTagScanDoesNotRescan(t *testing.T) {
	e := NewExtractor()
	e.Push("<attachments>\n")
	for i := 0; i < 100; i++ {
		e.Push("- /file\n")
	}
	require.True(t, e.Capturing())
	assert.GreaterOrEqual(t, e.scanFrom, len(e.buf)-len(CloseTag))

	_, atts := e.Push("</attachments>")
	assert.Len(t, atts, 100)
	assert.False(t, e.Capturing())
}

func TestExtractorResetDiscardsBuffer(t *testing.T) {
	e := NewExtractor()
	e.Push("partial <attachments>\n- /lost")
	e.Reset()
	assert.False(t, e.Pending())

	text, atts := runExtractorOn(e, "fresh")
	assert.Equal(t, "fresh", text)
	assert.Empty(t, atts)
}

func TestExtractorReusableAfterFlush(t *testing.T) {
	e := NewExtractor()
	runExtractorOn(e, "one <attachments>\n- /1\n</attachments>")
	text, atts := runExtractorOn(e, "  two")
	assert.Equal(t, "  two", text)
	assert.Empty(t, atts)
}

func runExtractorOn(e *Extractor, input string) (string, []ports.Attachment) {
	text, atts := e.Push(input)
	rest, more := e.FlushRemainder()
	return text + rest, append(atts, more...)
}
