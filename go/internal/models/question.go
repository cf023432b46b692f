package models

import "slices"

// Question is a single multiple-choice quiz question
type Question struct {
	Prompt        string         `json:"prompt" yaml:"prompt"`
	Options       []string       `json:"options" yaml:"options"`
	CorrectOption string         `json:"correctOption" yaml:"correctOption"`
	Metadata      map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// QuestionView is the question as shown to players, without the answer
type QuestionView struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// View strips the correct option for untrusted clients
func (q Question) View() QuestionView {
	return QuestionView{
		Prompt:  q.Prompt,
		Options: slices.Clone(q.Options),
	}
}

// IsCorrect reports whether the answer matches the correct option.
// A nil answer (timeout) is never correct.
func (q Question) IsCorrect(answer *string) bool {
	return answer != nil && *answer == q.CorrectOption
}
