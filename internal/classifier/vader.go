package classifier

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/jonreiter/govader"
	"github.com/russross/blackfriday/v2"
)

var (
	linkPattern = regexp.MustCompile(`\[(.*?)\]\((https?:\/\/[^\s\)]+)\)`)
	urlPattern  = regexp.MustCompile(`https?://\S+|www\.\S+`)
	tagPattern  = regexp.MustCompile(`<[^>]*>`)
)

// VaderClassifier is a lexicon based POSITIVE/NEGATIVE classifier. It needs
// no model files and is safe for concurrent use.
type VaderClassifier struct {
	analyzer *govader.SentimentIntensityAnalyzer
}

func NewVaderClassifier() *VaderClassifier {
	return &VaderClassifier{analyzer: govader.NewSentimentIntensityAnalyzer()}
}

func (v *VaderClassifier) Classify(ctx context.Context, texts []string) ([][]Score, error) {
	results := make([][]Score, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		compound := v.analyzer.PolarityScores(ConvertMarkdownToText(text)).Compound
		// compound is in [-1, 1]; map it onto a two label distribution.
		positive := (compound + 1) / 2
		results[i] = rank([]Score{
			{Label: LABEL_POSITIVE, Score: positive},
			{Label: LABEL_NEGATIVE, Score: 1 - positive},
		})
	}
	return results, nil
}

func RemoveLinks(input string) string {
	input = linkPattern.ReplaceAllString(input, "$1") // Keep only the text
	return urlPattern.ReplaceAllString(input, "")
}

func ConvertMarkdownToText(input string) string {
	output := blackfriday.Run([]byte(input),
		blackfriday.WithNoExtensions(),
		blackfriday.WithRenderer(newTextRenderer()))
	return strings.Join(strings.Fields(RemoveLinks(stripTags(string(output)))), " ")
}

func stripTags(markup string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(markup, " "))
}

// Renderers keep per-document state, so each conversion gets its own. Plain
// HTML output only: smartypants would rewrite apostrophes VADER relies on.
func newTextRenderer() blackfriday.Renderer {
	return blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
		Flags: blackfriday.UseXHTML,
	})
}
