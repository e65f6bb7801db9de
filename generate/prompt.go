package generate

import (
	"log/slog"
	"strings"
	"text/template"

	defaults "github.com/Paranoid-AF/ghostline/default"
)

// PromptData holds the data passed to the prompt template.
type PromptData struct {
	Language  string
	Preceding string
	Current   string
	Following string
}

var promptTemplate = template.Must(template.New("prompt").Parse(defaults.DefaultPrompt))

// BuildPrompt renders the instruction prompt for one completion.
// Source text is embedded as-is: a literal "[INST]" or "[/INST]" in the
// document is not escaped and can confuse the model's framing.
func BuildPrompt(languageID, preceding, current, following string) string {
	data := PromptData{
		Language:  languageID,
		Preceding: preceding,
		Current:   current,
		Following: following,
	}

	var buf strings.Builder
	if err := promptTemplate.Execute(&buf, data); err != nil {
		slog.Error("failed to execute prompt template", "error", err)
		return ""
	}
	return strings.TrimRight(buf.String(), " \t\n")
}

// buildPromptFromWindow joins the window's line blocks and renders the prompt.
func buildPromptFromWindow(languageID string, w ContextWindow) string {
	return BuildPrompt(languageID, strings.Join(w.Preceding, "\n"), w.Current, strings.Join(w.Following, "\n"))
}
