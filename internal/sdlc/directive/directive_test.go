package directive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		text          string
		wantContent   string
		wantDirective Directive
	}{
		{
			name:          "marker at end",
			text:          "Here is the plan. [ACTION: ARCHITECT_DESIGN_COMPLETE]",
			wantContent:   "Here is the plan.",
			wantDirective: ArchitectDesignComplete,
		},
		{
			name:          "keyword is trimmed and upper-cased",
			text:          "ok [ACTION:  assign_to_designer  ]",
			wantContent:   "ok",
			wantDirective: AssignToDesigner,
		},
		{
			name:          "text after marker is dropped",
			text:          "Design done. [ACTION: DESIGN_COMPLETE] trailing words",
			wantContent:   "Design done.",
			wantDirective: DesignComplete,
		},
		{
			name:          "first marker wins",
			text:          "a [ACTION: PHASE_COMPLETE] b [ACTION: REQUEST_REVISION]",
			wantContent:   "a",
			wantDirective: PhaseComplete,
		},
		{
			name:          "no marker",
			text:          "Just talking.",
			wantContent:   "Just talking.",
			wantDirective: NoActionSpecified,
		},
		{
			name:          "unclosed marker",
			text:          "Broken [ACTION: PHASE_COMPLETE",
			wantContent:   "Broken [ACTION: PHASE_COMPLETE",
			wantDirective: NoActionSpecified,
		},
		{
			name:          "empty text",
			text:          "",
			wantContent:   "",
			wantDirective: NoActionSpecified,
		},
		{
			name:          "marker only",
			text:          "[ACTION: HANDOFF_TO_ARCHITECT]",
			wantContent:   "",
			wantDirective: HandoffToArchitect,
		},
		{
			name:          "unknown keyword is kept",
			text:          "hmm [ACTION: dance]",
			wantContent:   "hmm",
			wantDirective: Directive("DANCE"),
		},
		{
			name:          "empty keyword",
			text:          "x [ACTION:]",
			wantContent:   "x",
			wantDirective: Directive(""),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Parse(tc.text)
			assert.Equal(t, tc.wantContent, got.Content)
			assert.Equal(t, tc.wantDirective, got.Directive)
		})
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	t.Parallel()

	contents := []string{"", "plain", "  padded content  ", "multi\nline\ncontent", "brackets ] inside"}
	for _, d := range All() {
		for _, c := range contents {
			got := Parse(Format(c, d))
			assert.Equal(t, d, got.Directive, "content %q", c)
			if c == "" {
				assert.Empty(t, got.Content)
				continue
			}
			assert.Equal(t, strings.TrimSpace(c), got.Content)
		}
	}
}

func TestKnown(t *testing.T) {
	t.Parallel()

	for _, d := range All() {
		assert.True(t, Known(d), d)
	}
	assert.False(t, Known(NoActionSpecified))
	assert.False(t, Known(""))
	assert.False(t, Known("SOMETHING_ELSE"))
	assert.Len(t, All(), 11)
}
