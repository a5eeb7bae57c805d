// Package quiz holds the immutable quiz snapshot the room engine plays
// through: title, ordered questions, correct indices, and per-question
// bonus flag. The time limit is not part of the snapshot; the room holds
// it. Quiz content itself is produced by an external
// collaborator (question generation, manual import) and handed to this
// package only as already-validated JSON; this package never generates or
// rewrites quiz text.
package quiz

import (
	"encoding/json"
	"fmt"
)

// Question is one entry in a Quiz. Option count is fixed at load time to
// either 2 or 4, per spec.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	ImageRef      string   `json:"image_ref,omitempty"`
	Bonus         bool     `json:"bonus"`
}

// Quiz is an ordered, immutable sequence of Questions plus a title. It
// carries no time limit; the room keeps that beside the Quiz. Once constructed, a Quiz
// is never mutated; RESET_ROOM replaces the whole snapshot rather than
// editing one in place.
type Quiz struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Len returns the number of questions.
func (q Quiz) Len() int { return len(q.Questions) }

// At returns the question at idx. Panics if idx is out of range; callers
// (the room actor) only ever index within [0, Len()) by construction.
func (q Quiz) At(idx int) Question { return q.Questions[idx] }

// Validate checks the structural invariants a quiz snapshot must satisfy
// before a room can be created with it: at least one question, 2 or 4
// options per question, and a correct index within range.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz: must contain at least one question")
	}
	for i, question := range q.Questions {
		switch len(question.Options) {
		case 2, 4:
		default:
			return fmt.Errorf("quiz: question %d (%s): options must number 2 or 4, got %d", i, question.ID, len(question.Options))
		}
		if question.CorrectOption < 0 || question.CorrectOption >= len(question.Options) {
			return fmt.Errorf("quiz: question %d (%s): correct_option %d out of range", i, question.ID, question.CorrectOption)
		}
		if question.Prompt == "" {
			return fmt.Errorf("quiz: question %d (%s): prompt must not be empty", i, question.ID)
		}
	}
	return nil
}

// Parse decodes a quiz snapshot produced by the external quiz-generation
// collaborator and validates it before handing it back to the caller.
func Parse(data []byte) (Quiz, error) {
	var q Quiz
	if err := json.Unmarshal(data, &q); err != nil {
		return Quiz{}, fmt.Errorf("quiz: decode: %w", err)
	}
	if err := q.Validate(); err != nil {
		return Quiz{}, err
	}
	return q, nil
}
