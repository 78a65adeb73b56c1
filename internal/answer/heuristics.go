package answer

import (
	"strings"

	"github.com/hyperjump/grain/internal/models"
)

var historyCommands = []string{"/history", "/show history", "show my history"}

var historyPhrases = []string{
	"what did i ask before", "what was my previous question",
	"what were my previous questions", "what did i ask previously",
	"what have i asked", "what questions did i ask",
	"what was my last question", "what did i just ask",
	"previous query", "previous questions",
}

var greetings = []string{
	"hi", "hello", "hey", "greetings", "good morning",
	"good afternoon", "good evening", "how are you",
	"what's up", "nice to meet you", "how's it going", "howdy",
}

const greetingReply = "Hey! How's it going? What would you like to know about university matters?"

// smallTalk categories are matched in order.
var smallTalk = []struct {
	phrases []string
	reply   string
}{
	{[]string{"thank", "thanks", "thank you", "appreciate"},
		"You're welcome! Feel free to ask if you need anything else."},
	{[]string{"bye", "goodbye", "see you", "farewell", "good night"},
		"Goodbye! Come back anytime you have questions."},
	{[]string{"help me", "assist", "support", "guidance"},
		"I can help with university admissions, fees, courses, campus facilities, procedures, and more. What do you need?"},
	{[]string{"what can you do", "how can you help", "your capabilities"},
		"I can answer questions about university admissions, fee structures, courses, campus life, procedures, and academic policies. How can I assist you?"},
	{[]string{"who are you", "what are you", "your name"},
		"I'm your university assistant, here to help with questions about university procedures, admissions, courses, and more. What would you like to know?"},
}

var universityTerms = []string{
	"fee", "admission", "course", "program", "semester", "credit", "degree",
	"department", "faculty", "student", "registration", "enrollment", "scholarship",
	"hostel", "campus", "library", "exam", "grade", "cgpa", "gpa", "transcript",
	"deadline", "requirement", "eligibility", "criteria", "process", "procedure",
	"form", "application", "document", "certificate", "convocation", "graduation",
	"schedule", "timetable", "class", "lecture", "lab", "project", "thesis",
	"tuition", "payment", "challan", "withdraw", "drop", "add", "change",
	"professor", "instructor", "advisor", "counselor", "office", "contact",
}

var refusalPatterns = []string{
	"don't have enough information",
	"can't answer",
	"unable to answer",
	"not enough information",
	"insufficient information",
	"cannot provide",
}

// isHistoryCommand reports whether question asks to list the session history verbatim.
func isHistoryCommand(question string) bool {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, c := range historyCommands {
		if q == c {
			return true
		}
	}
	return false
}

func isHistoryQuery(question string) bool {
	return containsAny(strings.ToLower(question), historyPhrases)
}

// smallTalkReply returns a canned reply for greetings and conversational phrases.
func smallTalkReply(question string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, g := range greetings {
		if q == g || strings.HasPrefix(q, g+" ") {
			return greetingReply, true
		}
	}
	for _, st := range smallTalk {
		if containsAny(q, st.phrases) {
			return st.reply, true
		}
	}
	return "", false
}

func hasUniversityTerms(question string) bool {
	return containsAny(strings.ToLower(question), universityTerms)
}

func isRefusal(text string) bool {
	return containsAny(strings.ToLower(text), refusalPatterns)
}

// Thresholds for the usable-context check, applied to chunk relevance scores.
type Thresholds struct {
	High   float64
	Medium float64
}

// usableContext decides whether retrieved chunks are good enough to answer from:
// one chunk scoring above High, or two above Medium for a university question,
// or any three chunks for a university question.
func usableContext(question string, chunks []models.Chunk, th Thresholds) bool {
	if len(chunks) == 0 {
		return false
	}
	high, medium := 0, 0
	for _, c := range chunks {
		s := c.Relevance()
		if s > th.High {
			high++
		}
		if s > th.Medium {
			medium++
		}
	}
	if high >= 1 {
		return true
	}
	uni := hasUniversityTerms(question)
	return (medium >= 2 && uni) || (len(chunks) >= 3 && uni)
}

// worthRetrying reports whether a refusal should be retried: some chunk scores above high
// and there are at least two chunks.
func worthRetrying(chunks []models.Chunk, high float64) bool {
	if len(chunks) < 2 {
		return false
	}
	for _, c := range chunks {
		if c.Relevance() > high {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, p := range subs {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
