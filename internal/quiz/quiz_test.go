package quiz

import "testing"

func TestParseValid(t *testing.T) {
	data := []byte(`{
		"title": "General Knowledge",
		"questions": [
			{"id": "q1", "prompt": "2+2?", "options": ["3","4","5","6"], "correct_option": 1, "bonus": false}
		]
	}`)

	q, err := Parse(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 question, got %d", q.Len())
	}
	if q.At(0).CorrectOption != 1 {
		t.Fatalf("expected correct_option 1, got %d", q.At(0).CorrectOption)
	}
}

func TestValidateRejectsBadOptionCount(t *testing.T) {
	q := Quiz{Questions: []Question{
		{ID: "q1", Prompt: "x", Options: []string{"a", "b", "c"}, CorrectOption: 0},
	}}
	if err := q.Validate(); err == nil {
		t.Fatal("expected error for 3-option question")
	}
}

func TestValidateRejectsOutOfRangeCorrectOption(t *testing.T) {
	q := Quiz{Questions: []Question{
		{ID: "q1", Prompt: "x", Options: []string{"a", "b"}, CorrectOption: 2},
	}}
	if err := q.Validate(); err == nil {
		t.Fatal("expected error for out-of-range correct_option")
	}
}

func TestValidateRejectsEmptyQuiz(t *testing.T) {
	q := Quiz{}
	if err := q.Validate(); err == nil {
		t.Fatal("expected error for empty quiz")
	}
}
