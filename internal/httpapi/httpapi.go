// Package httpapi wires the Room Directory (C7) and Connection Adapter
// (C8) to the outside world over plain HTTP and upgraded websockets.
// Route registration follows the teacher's registerCelebrityGame/
// registerHome style: one register* function per route group, called
// from web.go's ServePage against a shared *httprouter.Router.
package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/partyboxd/internal/directory"
	"github.com/Seednode/partyboxd/internal/engine"
	"github.com/Seednode/partyboxd/internal/quiz"
	"github.com/Seednode/partyboxd/internal/transport"
)

var validate = validator.New()

// Handler bundles everything route registration needs. A single instance
// is shared by every registered route, mirroring the teacher's pattern of
// closing over *Config in each serve* constructor.
type Handler struct {
	Directory    *directory.Directory
	TransportCfg transport.Config
	Log          zerolog.Logger
	CheckOrigin  func(r *http.Request) bool

	importsMu sync.Mutex
	imports   map[string]quiz.Quiz
}

// importedQuiz looks up a previously-imported quiz by id. On a zero-value
// Handler (as built by tests) the map is nil and the lookup reports not
// found; storeImportedQuiz creates the map on first use.
func (h *Handler) importedQuiz(id string) (quiz.Quiz, bool) {
	h.importsMu.Lock()
	defer h.importsMu.Unlock()

	q, ok := h.imports[id]

	return q, ok
}

func (h *Handler) storeImportedQuiz(q quiz.Quiz) string {
	h.importsMu.Lock()
	defer h.importsMu.Unlock()

	if h.imports == nil {
		h.imports = make(map[string]quiz.Quiz)
	}

	id := uuid.NewString()
	h.imports[id] = q

	return id
}

// importQuizRequest is the JSON body for POST /quiz/import.
type importQuizRequest struct {
	Quiz json.RawMessage `json:"quiz" validate:"required"`
}

type importQuizResponse struct {
	QuizID string `json:"quiz_id"`
}

// createRoomRequest is the JSON body for POST /room/create. A caller
// supplies either an inline Quiz snapshot or a QuizID returned by a
// prior POST /quiz/import call, never both.
type createRoomRequest struct {
	Quiz      json.RawMessage `json:"quiz,omitempty"`
	QuizID    string          `json:"quiz_id,omitempty"`
	TimeLimit int             `json:"time_limit_seconds" validate:"required,min=5,max=300"`
}

type createRoomResponse struct {
	RoomCode       string `json:"room_code"`
	OrganizerToken string `json:"organizer_token"`
}

// Register attaches every route this package serves to mux, under
// prefix (the same reverse-proxy path prefix the rest of the app uses).
func (h *Handler) Register(prefix string, mux *httprouter.Router) {
	mux.POST(prefix+"/quiz/import", h.serveImportQuiz())
	mux.POST(prefix+"/room/create", h.serveCreateRoom())
	mux.GET(prefix+"/room/:code/qr", h.serveQR())
	mux.GET(prefix+"/:code/:clientId", h.serveWebsocket())
}

// serveImportQuiz lets an organizer stage a quiz ahead of room creation —
// useful when the same quiz is reused across several rooms, or when the
// quiz body is large enough that a caller would rather not repeat it on
// every POST /room/create. The returned quiz_id is only valid for the
// lifetime of this server process (no durable persistence, per
// Non-goals); a restart loses staged imports same as it loses rooms.
func (h *Handler) serveImportQuiz() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req importQuizRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
			return
		}

		q, err := quiz.Parse(req.Quiz)
		if err != nil {
			http.Error(w, "invalid quiz: "+err.Error(), http.StatusBadRequest)
			return
		}

		id := h.storeImportedQuiz(q)

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(importQuizResponse{QuizID: id})

		h.Log.Info().Str("quiz_id", id).Msg("quiz imported")
	}
}

func (h *Handler) serveCreateRoom() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var req createRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "malformed request body", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(req); err != nil {
			http.Error(w, "invalid request: "+err.Error(), http.StatusBadRequest)
			return
		}

		var (
			q   quiz.Quiz
			err error
		)
		switch {
		case req.QuizID != "" && len(req.Quiz) > 0:
			http.Error(w, "request must set either quiz or quiz_id, not both", http.StatusBadRequest)
			return
		case req.QuizID != "":
			var ok bool
			q, ok = h.importedQuiz(req.QuizID)
			if !ok {
				http.Error(w, "unknown quiz_id", http.StatusBadRequest)
				return
			}
		case len(req.Quiz) > 0:
			q, err = quiz.Parse(req.Quiz)
			if err != nil {
				http.Error(w, "invalid quiz: "+err.Error(), http.StatusBadRequest)
				return
			}
		default:
			http.Error(w, "request must set either quiz or quiz_id", http.StatusBadRequest)
			return
		}

		code, token, err := h.Directory.Create(q, req.TimeLimit)
		if err != nil {
			if err == directory.ErrDirectoryFull {
				http.Error(w, "server is at capacity", http.StatusServiceUnavailable)
				return
			}
			http.Error(w, "unable to create room", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(createRoomResponse{RoomCode: code, OrganizerToken: token})

		h.Log.Info().Str("room", code).Msg("room created")
	}
}

// serveQR renders a PNG QR code pointing at the room's player join URL,
// grounded on the teacher's qrHandler (celebrity.go) using the same
// go-qrcode call, generalized from stripping "/qr" off the current path
// to building the player-facing join URL explicitly.
func (h *Handler) serveQR() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}
		if _, ok := h.Directory.Lookup(code); !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		joinURL := scheme + "://" + r.Host + "/join/" + code

		const qrSize = 320
		png, err := qrcode.Encode(joinURL, qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

// serveWebsocket implements the realtime message channel's wire shape
// (spec.md §6): "/<roomCode>/<clientId>?organizer=<bool>&spectator=<bool>
// &token=<organizerToken>". clientId is supplied by the client itself
// (spec.md §4.7: "a client-supplied opaque connection id, for logs") —
// the adapter never mints its own, it only validates one was given.
func (h *Handler) serveWebsocket() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		clientID := ps.ByName("clientId")
		if clientID == "" {
			http.Error(w, "missing client id", http.StatusBadRequest)
			return
		}

		room, ok := h.Directory.Lookup(code)
		if !ok {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		role, nickname, err := resolveRole(h.Directory, code, r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}

		upgrader := transport.NewUpgrader(h.CheckOrigin)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.Log.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		go transport.Serve(room, role, nickname, clientID, conn, h.TransportCfg, h.Log)
	}
}

// resolveRole inspects the query string to decide whether this connection
// is the organizer, a spectator, or a player, per spec.md §6's
// organizer=<bool>&spectator=<bool>&token=<organizerToken> query
// parameters (organizer requires a valid token; spectator is read-only;
// anything else defaults to player, with the nickname supplied either
// here or — more commonly — on the subsequent JOIN frame).
func resolveRole(d *directory.Directory, code string, q url.Values) (transport.Role, string, error) {
	if parseBool(q.Get("organizer")) {
		token := q.Get("token")
		if token == "" || !d.VerifyOrganizerToken(code, token) {
			return 0, "", errUnauthorizedOrganizer
		}
		return transport.RoleOrganizer, "", nil
	}
	if parseBool(q.Get("spectator")) {
		return transport.RoleSpectator, "", nil
	}
	return transport.RolePlayer, q.Get("nickname"), nil
}

func parseBool(s string) bool {
	v, _ := strconv.ParseBool(s)
	return v
}

var errUnauthorizedOrganizer = engine.ErrUnauthorized
