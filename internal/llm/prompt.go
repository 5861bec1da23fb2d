package llm

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

const answerTemplate = `You are a helpful assistant that answers questions about videos and web pages based on their transcripts.

Answer the following question: {{.question}}

Use only the following transcript excerpts:
{{.context}}

Only use factual information from the excerpts to answer the question.
If you don't have enough information to answer, say "I don't know".
Keep your answer concise (two sentences).`

var answerPrompt = prompts.NewPromptTemplate(answerTemplate, []string{"question", "context"})

// AnswerPrompt renders the question-answering prompt. Excerpts are
// numbered in the order given.
func AnswerPrompt(question string, excerpts []string) (string, error) {
	var b strings.Builder
	for i, e := range excerpts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(e))
	}
	return answerPrompt.Format(map[string]any{
		"question": strings.TrimSpace(question),
		"context":  strings.TrimRight(b.String(), "\n"),
	})
}

// PromptOverhead is the rendered template with no question or excerpts.
func PromptOverhead() string {
	s, _ := answerPrompt.Format(map[string]any{"question": "", "context": ""})
	return s
}
