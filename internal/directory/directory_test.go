package directory

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Seednode/partyboxd/internal/clock"
	"github.com/Seednode/partyboxd/internal/engine"
	"github.com/Seednode/partyboxd/internal/quiz"
)

func testQuiz() quiz.Quiz {
	return quiz.Quiz{
		Title: "T",
		Questions: []quiz.Question{
			{ID: "q1", Prompt: "p", Options: []string{"a", "b"}, CorrectOption: 0},
		},
	}
}

func newTestDirectory(maxRooms int) *Directory {
	clk := clock.NewVirtual(time.Unix(0, 0))
	cfg := engine.RoomConfig{InboxSize: 32}
	return New(cfg, clk, zerolog.Nop(), []byte("test-secret"), maxRooms)
}

func TestCreateAssignsUniqueCode(t *testing.T) {
	d := newTestDirectory(0)
	code1, token1, err := d.Create(testQuiz(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	code2, _, err := d.Create(testQuiz(), 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code1 == code2 {
		t.Fatalf("expected distinct room codes, got %q twice", code1)
	}
	if len(code1) != codeLength {
		t.Fatalf("expected a %d-character code, got %q", codeLength, code1)
	}
	if token1 == "" {
		t.Fatalf("expected a non-empty organizer token")
	}
}

func TestLookupFindsCreatedRoom(t *testing.T) {
	d := newTestDirectory(0)
	code, _, _ := d.Create(testQuiz(), 30)

	room, ok := d.Lookup(code)
	if !ok || room == nil {
		t.Fatalf("expected to find the created room")
	}
	if _, ok := d.Lookup("NOSUCH"); ok {
		t.Fatalf("expected lookup of an unknown code to fail")
	}
}

func TestCreateRejectsOverCapacity(t *testing.T) {
	d := newTestDirectory(1)
	if _, _, err := d.Create(testQuiz(), 30); err != nil {
		t.Fatalf("unexpected error on first create: %v", err)
	}
	if _, _, err := d.Create(testQuiz(), 30); err != ErrDirectoryFull {
		t.Fatalf("expected ErrDirectoryFull once at capacity, got %v", err)
	}
}

func TestVerifyOrganizerTokenRejectsWrongRoom(t *testing.T) {
	d := newTestDirectory(0)
	code1, token1, _ := d.Create(testQuiz(), 30)
	code2, _, _ := d.Create(testQuiz(), 30)

	if !d.VerifyOrganizerToken(code1, token1) {
		t.Fatalf("expected token to verify for its own room")
	}
	if d.VerifyOrganizerToken(code2, token1) {
		t.Fatalf("expected token minted for one room to be rejected for another")
	}
	if d.VerifyOrganizerToken(code1, "garbage") {
		t.Fatalf("expected a malformed token to be rejected")
	}
}

func TestEvictRemovesRoomFromDirectory(t *testing.T) {
	d := newTestDirectory(0)
	code, _, _ := d.Create(testQuiz(), 30)
	if d.Count() != 1 {
		t.Fatalf("expected 1 live room, got %d", d.Count())
	}

	d.evict(code)

	if d.Count() != 0 {
		t.Fatalf("expected room to be evicted, count=%d", d.Count())
	}
	if _, ok := d.Lookup(code); ok {
		t.Fatalf("expected evicted room to no longer be found")
	}
}
