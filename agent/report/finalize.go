package report

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
)

const dateLayout = "January 2, 2006"

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	markdownLinkRegexp = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	listMarkerPattern  = regexp.MustCompile(`(?m)^\s*(?:[-*+•]|\d+[.)]|#{1,6})\s+`)
	emphasisPattern    = regexp.MustCompile("\\*\\*|__|`+|~~")
)

// finalize resolves image ids against the generated images. Ids the model made up
// resolve to no image.
func finalize(cfg Config, query string, draft Draft, images []contractx.GeneratedImage, now time.Time) Final {
	byID := make(map[string]contractx.GeneratedImage, len(images))
	for _, img := range images {
		byID[img.ImageID] = img
	}

	highlights := make([]FinalHighlight, 0, len(draft.Highlights))
	for _, h := range draft.Highlights {
		fh := FinalHighlight{
			Title:      strings.TrimSpace(h.Title),
			Subtitle:   strings.TrimSpace(h.Subtitle),
			Paragraph:  strings.TrimSpace(h.Paragraph),
			ImageTitle: strings.TrimSpace(h.ImageTitle),
			ImageBg:    cfg.ImageBackground,
		}
		if img, ok := byID[strings.TrimSpace(h.ImageID)]; ok && img.StorageLocation != "" {
			fh.ImageSVG = imageTag(img.StorageLocation, fh.ImageTitle)
		}
		highlights = append(highlights, fh)
	}

	return Final{
		MainTitle:          cfg.MainTitle,
		Subtitle:           strings.TrimSpace(query),
		PreparedBy:         cfg.PreparedBy,
		Date:               now.Format(dateLayout),
		SummaryTitle:       strings.TrimSpace(draft.SummaryTitle),
		ExecutiveParagraph: strings.TrimSpace(draft.ExecutiveParagraph),
		Highlights:         highlights,
		ClosingParagraph:   strings.TrimSpace(draft.ClosingParagraph),
	}
}

func imageTag(src, alt string) string {
	return fmt.Sprintf(`<img src="%s" alt="%s" style="max-width: 400px; height: auto;" />`,
		html.EscapeString(src), html.EscapeString(alt))
}

// checkDraft enforces the shape the renderer needs. A draft must carry at least
// want highlights; extras are trimmed.
func checkDraft(draft Draft, want int) (Draft, error) {
	if strings.TrimSpace(draft.SummaryTitle) == "" {
		return Draft{}, fmt.Errorf("%w: summary_title is empty", contractx.ErrSchemaViolation)
	}
	if strings.TrimSpace(draft.ExecutiveParagraph) == "" {
		return Draft{}, fmt.Errorf("%w: executive_paragraph is empty", contractx.ErrSchemaViolation)
	}
	if len(draft.Highlights) == 0 {
		return Draft{}, fmt.Errorf("%w: report has no highlights", contractx.ErrSchemaViolation)
	}
	if len(draft.Highlights) < want {
		return Draft{}, fmt.Errorf("%w: report has %d highlights, want %d", contractx.ErrSchemaViolation, len(draft.Highlights), want)
	}
	draft.Highlights = draft.Highlights[:want]
	return draft, nil
}

// plainProse flattens model output into one paragraph: markup and markdown are
// removed and questions are dropped.
func plainProse(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = markdownLinkRegexp.ReplaceAllString(s, "$1")
	s = listMarkerPattern.ReplaceAllString(s, "")
	s = emphasisPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	var kept, sentence []string
	flush := func() {
		if len(sentence) > 0 && !strings.HasSuffix(sentence[len(sentence)-1], "?") {
			kept = append(kept, sentence...)
		}
		sentence = sentence[:0]
	}
	for _, word := range strings.Fields(s) {
		sentence = append(sentence, word)
		if strings.ContainsAny(word[len(word)-1:], ".!?") {
			flush()
		}
	}
	flush()
	return strings.Join(kept, " ")
}

// formatTranscript renders turns one per line the way the extract prompt expects.
func formatTranscript(turns []contractx.Turn, limit int) string {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	var b strings.Builder
	for _, t := range turns {
		content := strings.TrimSpace(t.Content)
		if content == "" {
			continue
		}
		switch t.Role {
		case "user":
			b.WriteString("User: ")
		case "assistant":
			b.WriteString("Assistant: ")
		case "tool":
			b.WriteString("Tool result: ")
		default:
			b.WriteString(t.Role + ": ")
		}
		b.WriteString(content)
		b.WriteByte('\n')
	}
	return strings.TrimSpace(b.String())
}

type imageChoice struct {
	ImageID     string `json:"image_id"`
	Description string `json:"description"`
}

func formatImages(images []contractx.GeneratedImage) string {
	if len(images) == 0 {
		return "No images are available. Use an empty image_id for every highlight."
	}
	choices := make([]imageChoice, 0, len(images))
	for _, img := range images {
		choices = append(choices, imageChoice{ImageID: img.ImageID, Description: img.Description})
	}
	raw, _ := json.Marshal(choices)
	return string(raw)
}
