package attachments

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"

	"github.com/chiyuki0325/Memoh/internal/domain/agent/ports"
)

func files(paths ...string) []ports.Attachment {
	out := make([]ports.Attachment, 0, len(paths))
	for _, p := range paths {
		out = append(out, ports.FileAttachment(p))
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantText string
		want     []ports.Attachment
	}{
		{
			name:     "inline block between words",
			input:    "Hello <attachments>\n- /a.pdf\n</attachments> world",
			wantText: "Hello world",
			want:     files("/a.pdf"),
		},
		{
			name:     "no block is identity",
			input:    "  plain text\nwith </attachments> and spacing  \n",
			wantText: "  plain text\nwith </attachments> and spacing  \n",
		},
		{
			name:     "unterminated block stays visible",
			input:    "abc <attachments>\n- /x",
			wantText: "abc <attachments>\n- /x",
		},
		{
			name:     "two blocks in order",
			input:    "First <attachments>\n- /one.png\n</attachments> middle <attachments>\n- /two.png\n</attachments> last",
			wantText: "First middle last",
			want:     files("/one.png", "/two.png"),
		},
		{
			name:     "block on its own lines",
			input:    "Here is the report.\n\n<attachments>\n- /data/report.pdf\n- /data/chart.png\n</attachments>\n\nLet me know.",
			wantText: "Here is the report.\n\nLet me know.",
			want:     files("/data/report.pdf", "/data/chart.png"),
		},
		{
			name:     "trailing block is trimmed away",
			input:    "Done.\n<attachments>\n- /out.txt\n</attachments>\n",
			wantText: "Done.",
			want:     files("/out.txt"),
		},
		{
			name:     "leading block is trimmed away",
			input:    "\n<attachments>\n- /in.txt\n</attachments>\n\nHi",
			wantText: "Hi",
			want:     files("/in.txt"),
		},
		{
			name:     "adjacent blocks merge into one gap",
			input:    "A\n<attachments>\n- /1\n</attachments>\n<attachments>\n- /2\n</attachments> B",
			wantText: "A\nB",
			want:     files("/1", "/2"),
		},
		{
			name:     "blank lines are capped at one empty line",
			input:    "A\n\n\n<attachments>\n- /1\n</attachments>\n\n\nB",
			wantText: "A\n\nB",
			want:     files("/1"),
		},
		{
			name:     "no whitespace around block",
			input:    "A<attachments>\n- /1\n</attachments>B",
			wantText: "AB",
			want:     files("/1"),
		},
		{
			name:     "other lines and empty paths ignored",
			input:    "x <attachments>\nnote: ignore me\n-   /spaced.txt  \n- \n-/nodash\n</attachments> y",
			wantText: "x y",
			want:     files("/spaced.txt"),
		},
		{
			name:     "nested opener is just a body line",
			input:    "a <attachments>\n<attachments>\n- /n\n</attachments> b </attachments> c",
			wantText: "a b </attachments> c",
			want:     files("/n"),
		},
		{
			name:     "complete block then dangling opener",
			input:    "a <attachments>\n- /1\n</attachments>\n<attachments>\n- /2",
			wantText: "a\n<attachments>\n- /2",
			want:     files("/1"),
		},
		{
			name:     "empty block",
			input:    "keep <attachments></attachments> going",
			wantText: "keep going",
		},
		{
			name:     "multibyte text around block",
			input:    "héllo 世界 <attachments>\n- /文件.pdf\n</attachments> ✓",
			wantText: "héllo 世界 ✓",
			want:     files("/文件.pdf"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotText, got := Extract(tt.input)
			assert.Equal(t, tt.wantText, gotText)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("attachments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("x <attachments>\n- /a\n</attachments>"))
	assert.False(t, Contains("x <attachments>\n- /a"))
	assert.False(t, Contains("</attachments> <attachments>"))
	assert.False(t, Contains("plain"))
}
