package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/grain/internal/models"
)

const (
	perSourceLimit     = 5
	recentQuestions    = 5
	summaryMinQueries  = 5
	summaryQueryWindow = 10
)

const systemPrompt = `You are an experienced university advisor answering a student's question.

Guidelines:
1. Answer accurately and completely from the information provided.
2. If the information contains anything relevant, use it. Only say information is unavailable when nothing related is present.
3. Write naturally, the way a helpful advisor talks. Do not say "as an AI" or "according to the document".
4. Use bullet points, numbering and spacing where they help.
5. Keep the language plain and explain terms a student may not know.
6. Do not mention document names or sources.
7. If you can answer only part of the question, answer that part and say what is missing.
8. Take the student's earlier questions into account when they matter.
9. Include practical next steps where they exist.`

// buildPrompt assembles the question prompt: chunks grouped by source type (best five of each,
// highest score first), then the conversation summary and recent questions, then the question.
func buildPrompt(question string, chunks []models.Chunk, previous []string, summary string) string {
	sorted := make([]models.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Relevance() > sorted[j].Relevance() })

	var sections []string
	if s := contextSection(models.FilterByType(sorted, models.SourceTypePDF)); s != "" {
		sections = append(sections, "OFFICIAL DOCUMENTS:\n"+s)
	}
	if s := contextSection(models.FilterByType(sorted, models.SourceTypeWeb)); s != "" {
		sections = append(sections, "WEBSITE INFORMATION:\n"+s)
	}

	var conversation strings.Builder
	if len(previous) > 0 {
		if summary != "" {
			fmt.Fprintf(&conversation, "\n\nCONVERSATION SUMMARY:\n%s\n", summary)
		}
		conversation.WriteString("\nRECENT QUESTIONS:\n")
		recent := previous[max(0, len(previous)-recentQuestions):]
		for i, q := range recent {
			if i > 0 {
				conversation.WriteByte('\n')
			}
			conversation.WriteString("• " + q)
		}
	}

	return fmt.Sprintf(`AVAILABLE INFORMATION:
%s
%s

STUDENT'S QUESTION:
%s

INSTRUCTIONS:
Review the information above and use every detail that helps answer the question. Give a complete, well-structured response. Only say that information is unavailable if nothing above relates to the question.

YOUR RESPONSE:
`, strings.Join(sections, "\n\n---\n\n"), conversation.String(), question)
}

func contextSection(chunks []models.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	if len(chunks) > perSourceLimit {
		chunks = chunks[:perSourceLimit]
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Score: %.2f]\n%s", c.Relevance(), c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// retryPrompt asks again without room for a refusal, using the top five chunks in retrieval order.
func retryPrompt(question string, chunks []models.Chunk) string {
	top := chunks[:min(len(chunks), perSourceLimit)]
	texts := make([]string, len(top))
	for i, c := range top {
		texts[i] = c.Text
	}
	return fmt.Sprintf(`You are a university assistant. The user asked: %q

Relevant information is available below. Answer the question directly from it.
Do NOT say you don't have enough information. Present what is available.

CONTEXT:
%s

Answer based on this context:
`, question, strings.Join(texts, "\n"))
}

// summaryPrompt asks for a short summary of the last ten questions.
func summaryPrompt(previous []string) string {
	window := previous[max(0, len(previous)-summaryQueryWindow):]
	lines := make([]string, len(window))
	for i, q := range window {
		lines[i] = "- " + q
	}
	return fmt.Sprintf(`Summarize the main topics of these questions in 2-3 sentences, focusing on what the student needs to know.

QUESTIONS:
%s

SUMMARY:
`, strings.Join(lines, "\n"))
}
