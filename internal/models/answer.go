package models

// AskRequest is a question sent to the assistant.
type AskRequest struct {
	SessionID  string     `json:"session_id,omitempty"`
	Question   string     `json:"question"`
	DataSource DataSource `json:"data_source,omitempty"`
	// UseHistory enables session memory; nil means enabled.
	UseHistory *bool `json:"use_history,omitempty"`
}

// HistoryEnabled reports whether session memory should be used for this request.
func (r *AskRequest) HistoryEnabled() bool {
	return r.UseHistory == nil || *r.UseHistory
}

// AnswerKind says how an answer was produced.
type AnswerKind string

const (
	AnswerGenerated  AnswerKind = "generated"
	AnswerSmallTalk  AnswerKind = "small_talk"
	AnswerHistory    AnswerKind = "history"
	AnswerNoContext  AnswerKind = "no_context"
	AnswerGenFailure AnswerKind = "generation_error"
)

// AskResponse is the assistant's reply with the evidence it used.
type AskResponse struct {
	SessionID string     `json:"session_id"`
	Answer    string     `json:"answer"`
	Kind      AnswerKind `json:"kind"`
	Chunks    []Chunk    `json:"chunks,omitempty"`
	QueryTime int64      `json:"query_time_ms"`
}
