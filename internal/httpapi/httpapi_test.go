package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"github.com/Seednode/partyboxd/internal/clock"
	"github.com/Seednode/partyboxd/internal/directory"
	"github.com/Seednode/partyboxd/internal/engine"
	"github.com/Seednode/partyboxd/internal/quiz"
	"github.com/Seednode/partyboxd/internal/transport"
)

func newTestHandler() *Handler {
	clk := clock.NewVirtual(time.Unix(0, 0))
	dir := directory.New(engine.RoomConfig{InboxSize: 32}, clk, zerolog.Nop(), []byte("secret"), 0)
	return &Handler{
		Directory:    dir,
		TransportCfg: transport.Config{OutboundQueueSize: 8, HeartbeatInterval: time.Minute, ReadTimeout: time.Minute},
		Log:          zerolog.Nop(),
		CheckOrigin:  func(*http.Request) bool { return true },
	}
}

func newTestMux(h *Handler) *httprouter.Router {
	mux := httprouter.New()
	h.Register("", mux)
	return mux
}

const validQuizBody = `{"quiz":{"title":"T","questions":[{"id":"q1","prompt":"2+2?","options":["3","4"],"correct_option":1}]},"time_limit_seconds":30}`

func TestCreateRoomSucceeds(t *testing.T) {
	h := newTestHandler()
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodPost, "/room/create", bytes.NewBufferString(validQuizBody))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("room_code")) {
		t.Fatalf("expected a room_code in the response, got %s", rec.Body.String())
	}
}

func TestCreateRoomRejectsMissingTimeLimit(t *testing.T) {
	h := newTestHandler()
	mux := newTestMux(h)

	body := `{"quiz":{"title":"T","questions":[{"id":"q1","prompt":"2+2?","options":["3","4"],"correct_option":1}]}}`
	req := httptest.NewRequest(http.MethodPost, "/room/create", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing time limit, got %d", rec.Code)
	}
}

func TestCreateRoomRejectsInvalidQuiz(t *testing.T) {
	h := newTestHandler()
	mux := newTestMux(h)

	body := `{"quiz":{"title":"T","questions":[]},"time_limit_seconds":30}`
	req := httptest.NewRequest(http.MethodPost, "/room/create", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an empty quiz, got %d", rec.Code)
	}
}

func TestImportQuizThenCreateRoomByID(t *testing.T) {
	h := newTestHandler()
	mux := newTestMux(h)

	importBody := `{"quiz":{"title":"T","questions":[{"id":"q1","prompt":"2+2?","options":["3","4"],"correct_option":1}]}}`
	importReq := httptest.NewRequest(http.MethodPost, "/quiz/import", bytes.NewBufferString(importBody))
	importRec := httptest.NewRecorder()
	mux.ServeHTTP(importRec, importReq)

	if importRec.Code != http.StatusOK {
		t.Fatalf("expected 200 from import, got %d: %s", importRec.Code, importRec.Body.String())
	}

	var importResp importQuizResponse
	if err := json.Unmarshal(importRec.Body.Bytes(), &importResp); err != nil {
		t.Fatalf("unmarshal import response: %v", err)
	}
	if importResp.QuizID == "" {
		t.Fatal("expected a non-empty quiz_id")
	}

	createBody := `{"quiz_id":"` + importResp.QuizID + `","time_limit_seconds":30}`
	createReq := httptest.NewRequest(http.MethodPost, "/room/create", bytes.NewBufferString(createBody))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)

	if createRec.Code != http.StatusOK {
		t.Fatalf("expected 200 creating a room from quiz_id, got %d: %s", createRec.Code, createRec.Body.String())
	}
}

func TestCreateRoomRejectsUnknownQuizID(t *testing.T) {
	h := newTestHandler()
	mux := newTestMux(h)

	body := `{"quiz_id":"does-not-exist","time_limit_seconds":30}`
	req := httptest.NewRequest(http.MethodPost, "/room/create", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown quiz_id, got %d", rec.Code)
	}
}

func TestQRNotFoundForUnknownRoom(t *testing.T) {
	h := newTestHandler()
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodGet, "/room/NOSUCH/qr", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown room, got %d", rec.Code)
	}
}

func TestQRSucceedsForKnownRoom(t *testing.T) {
	h := newTestHandler()
	mux := newTestMux(h)

	createReq := httptest.NewRequest(http.MethodPost, "/room/create", bytes.NewBufferString(validQuizBody))
	createRec := httptest.NewRecorder()
	mux.ServeHTTP(createRec, createReq)

	var resp createRoomResponse
	if err := json.Unmarshal(createRec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal create response: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/room/"+resp.RoomCode+"/qr", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a known room's qr code, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("expected an image/png response, got %q", rec.Header().Get("Content-Type"))
	}
}

func testQuiz() quiz.Quiz {
	return quiz.Quiz{
		Title: "T",
		Questions: []quiz.Question{
			{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectOption: 1},
		},
	}
}

func TestResolveRoleDefaultsToPlayer(t *testing.T) {
	h := newTestHandler()
	code, _, _ := h.Directory.Create(testQuiz(), 30)

	role, nickname, err := resolveRole(h.Directory, code, url.Values{"nickname": {"alice"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != transport.RolePlayer || nickname != "alice" {
		t.Fatalf("expected player role with nickname alice, got role=%d nickname=%q", role, nickname)
	}
}

func TestResolveRoleOrganizerRequiresValidToken(t *testing.T) {
	h := newTestHandler()
	code, token, _ := h.Directory.Create(testQuiz(), 30)

	if _, _, err := resolveRole(h.Directory, code, url.Values{"organizer": {"true"}, "token": {"garbage"}}); err == nil {
		t.Fatalf("expected an error for a bad organizer token")
	}
	role, _, err := resolveRole(h.Directory, code, url.Values{"organizer": {"true"}, "token": {token}})
	if err != nil {
		t.Fatalf("unexpected error with a valid token: %v", err)
	}
	if role != transport.RoleOrganizer {
		t.Fatalf("expected organizer role")
	}
}
