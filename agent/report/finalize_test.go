package report

import (
	"errors"
	"testing"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

func TestFinalizeDropsUnknownImageIDs(t *testing.T) {
	t.Parallel()

	cfg := Config{}.withDefaults()
	draft := Draft{
		SummaryTitle:       "s",
		ExecutiveParagraph: "e",
		Highlights: []DraftHighlight{
			{Title: "a", ImageTitle: `Logo "A"`, ImageID: "img-1"},
			{Title: "b", ImageID: "ghost"},
		},
	}
	images := []contractx.GeneratedImage{{ImageID: "img-1", StorageLocation: "https://cdn.example/x.png?a=1&b=2"}}

	final := finalize(cfg, " coffee ", draft, images, time.Date(2025, time.October, 12, 0, 0, 0, 0, time.UTC))

	if final.Date != "October 12, 2025" || final.Subtitle != "coffee" {
		t.Fatalf("unexpected header: %#v", final)
	}
	want := `<img src="https://cdn.example/x.png?a=1&amp;b=2" alt="Logo &#34;A&#34;" style="max-width: 400px; height: auto;" />`
	if final.Highlights[0].ImageSVG != want {
		t.Fatalf("unexpected image tag:\n got %s\nwant %s", final.Highlights[0].ImageSVG, want)
	}
	if final.Highlights[1].ImageSVG != "" {
		t.Fatalf("ghost id should resolve to no image")
	}
}

func TestFinalizeEmptyImageList(t *testing.T) {
	t.Parallel()

	draft := Draft{Highlights: []DraftHighlight{{Title: "a", ImageID: "img-1"}}}
	final := finalize(Config{}.withDefaults(), "q", draft, nil, time.Now())
	if len(final.Highlights) != 1 || final.Highlights[0].ImageSVG != "" {
		t.Fatalf("unexpected highlights: %#v", final.Highlights)
	}
}

func TestCheckDraftTrimsHighlights(t *testing.T) {
	t.Parallel()

	draft := Draft{SummaryTitle: "s", ExecutiveParagraph: "e", Highlights: make([]DraftHighlight, 5)}
	got, err := checkDraft(draft, 3)
	if err != nil {
		t.Fatalf("checkDraft() error = %v", err)
	}
	if len(got.Highlights) != 3 {
		t.Fatalf("expected 3 highlights, got %d", len(got.Highlights))
	}
}

func TestCheckDraftRejectsTooFewHighlights(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 2} {
		draft := Draft{SummaryTitle: "s", ExecutiveParagraph: "e", Highlights: make([]DraftHighlight, n)}
		if _, err := checkDraft(draft, 3); !errors.Is(err, contractx.ErrSchemaViolation) {
			t.Fatalf("checkDraft() with %d highlights error = %v, want ErrSchemaViolation", n, err)
		}
	}

	exact := Draft{SummaryTitle: "s", ExecutiveParagraph: "e", Highlights: make([]DraftHighlight, 3)}
	if got, err := checkDraft(exact, 3); err != nil || len(got.Highlights) != 3 {
		t.Fatalf("checkDraft() with exactly 3 highlights = %d, %v", len(got.Highlights), err)
	}
}

func TestPlainProse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "<p>Acme grew 12.5% in 2024.</p>", want: "Acme grew 12.5% in 2024."},
		{in: "# Summary\n- **Acme** sells coffee.\n- See [site](https://acme.example).", want: "Summary Acme sells coffee. See site."},
		{in: "Who are my competitors? Rivals are Foo and Bar.", want: "Rivals are Foo and Bar."},
		{in: "Revenue of 3.5 billion", want: "Revenue of 3.5 billion"},
	}
	for _, tt := range tests {
		if got := plainProse(tt.in); got != tt.want {
			t.Errorf("plainProse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	if got := stripCodeFence("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Fatalf("unexpected: %q", got)
	}
	if got := stripCodeFence(`{"a":1}`); got != `{"a":1}` {
		t.Fatalf("unexpected: %q", got)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := Config{HighlightCount: 7, ImageBackground: "#fff"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for 7 highlights")
	}
	cfg.HighlightCount = 6
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestFormatTranscriptKeepsTail(t *testing.T) {
	t.Parallel()

	turns := []contractx.Turn{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "tool", Content: "three"},
	}
	got := formatTranscript(turns, 2)
	if got != "Assistant: two\nTool result: three" {
		t.Fatalf("unexpected transcript: %q", got)
	}
}
