package report

import contractx "github.com/tanpawarit/deep-market-agent/agent/contract"

// Stage names reported in PipelineStageError and metrics.
const (
	StageExtract    = "extract"
	StageImageQuery = "image_query"
	StageImages     = "images"
	StageDefinition = "definition"
	StageRender     = "render"
	StagePersist    = "persist"
)

// DraftHighlight is one highlight as the model writes it. ImageID may be empty.
type DraftHighlight struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	Paragraph  string `json:"paragraph"`
	ImageTitle string `json:"image_title"`
	ImageID    string `json:"image_id"`
}

// Draft is the model-produced report definition. It never leaves the process.
type Draft struct {
	SummaryTitle       string           `json:"summary_title"`
	ExecutiveParagraph string           `json:"executive_paragraph"`
	Highlights         []DraftHighlight `json:"highlights"`
	ClosingParagraph   string           `json:"closing_paragraph"`
}

type FinalHighlight struct {
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	Paragraph  string `json:"paragraph"`
	ImageTitle string `json:"image_title"`
	ImageBg    string `json:"image_bg"`
	ImageSVG   string `json:"image_svg"`
}

// Final is the data document sent to the renderer and stored with the document record.
type Final struct {
	MainTitle          string           `json:"main_title"`
	Subtitle           string           `json:"subtitle"`
	PreparedBy         string           `json:"prepared_by"`
	Date               string           `json:"date"`
	SummaryTitle       string           `json:"summary_title"`
	ExecutiveParagraph string           `json:"executive_paragraph"`
	Highlights         []FinalHighlight `json:"highlights"`
	ClosingParagraph   string           `json:"closing_paragraph"`
}

type Input = contractx.ReportRequest

type Output struct {
	Document contractx.DocumentRef
	Info     string
	Images   []contractx.GeneratedImage
	Report   Final
}
