package transport

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/Seednode/partyboxd/internal/engine"
	"github.com/Seednode/partyboxd/internal/quiz"
)

// Role is the connection's claimed audience, determined by the Connection
// Adapter from the URL path and presented token before the first frame is
// even read (spec.md §4.5).
type Role int

const (
	RoleOrganizer Role = iota
	RolePlayer
	RoleSpectator
)

// Config bundles the per-connection timing knobs taken from the process
// configuration (SPEC_FULL.md §1/§6).
type Config struct {
	OutboundQueueSize int
	HeartbeatInterval time.Duration
	ReadTimeout       time.Duration
}

// Serve runs one connection's full lifecycle: registers it with the room
// according to role, starts the write pump, and translates inbound
// frames into engine.Command values posted to room. It blocks until the
// connection closes, mirroring the teacher's pattern of
// "go client.writePump(); client.readPump(hub)" inline in the HTTP
// handler goroutine.
func Serve(room *engine.Room, role Role, nickname string, connID string, conn wsConn, cfg Config, log zerolog.Logger) {
	client := NewClient(conn, connID, cfg.OutboundQueueSize, log)

	switch role {
	case RoleOrganizer:
		room.AttachOrganizer(client)
	case RoleSpectator:
		room.AddSpectator(client)
	case RolePlayer:
		// Players announce themselves via a "join" frame, not at
		// connection time, since the frame carries nickname/avatar/team.
	}

	go client.WritePump(cfg.HeartbeatInterval)

	client.ReadPump(cfg.ReadTimeout, func(frame inboundFrame) {
		if frame.Type == "JOIN" && role == RolePlayer {
			if frame.Nickname == "" {
				frame.Nickname = nickname
			}
			// Later frames and the disconnect are sent under the nickname
			// this connection joined with.
			if n, ok := engine.ValidateNickname(frame.Nickname); ok {
				nickname = n
			}
		}
		dispatch(room, role, nickname, client, frame)
	}, func() {
		switch role {
		case RoleOrganizer:
			room.Post(engine.OrganizerDisconnectCommand{Handle: client})
		case RoleSpectator:
			room.RemoveSpectator(client)
		case RolePlayer:
			if nickname != "" {
				room.Post(engine.PlayerDisconnectCommand{Handle: client, Nickname: nickname})
			}
		}
		client.Close()
	})
}

// wsConn is the subset of *websocket.Conn that Client depends on,
// narrowed so tests can substitute a fake connection without standing up
// a real socket.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteJSON(v any) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// dispatch translates one inbound frame into an engine.Command. Frame
// type discriminators match spec.md §6's inbound wire table verbatim
// (JOIN, ANSWER, USE_POWER_UP, START_GAME, NEXT_QUESTION, END_QUIZ,
// RESET_ROOM) — the same uppercase convention events.go uses for every
// outbound event type.
func dispatch(room *engine.Room, role Role, nickname string, client *Client, frame inboundFrame) {
	switch frame.Type {
	case "JOIN":
		if role != RolePlayer {
			client.Send(engine.NewErrorEvent("only players may join"))
			return
		}
		room.Post(engine.JoinCommand{
			Handle:   client,
			Nickname: frame.Nickname,
			Avatar:   frame.Avatar,
			Team:     frame.Team,
		})

	case "ANSWER":
		if role != RolePlayer {
			client.Send(engine.NewErrorEvent("only players may answer"))
			return
		}
		room.Post(engine.AnswerCommand{Handle: client, Nickname: nickname, OptionIndex: frame.OptionIndex})

	case "USE_POWER_UP":
		if role != RolePlayer {
			client.Send(engine.NewErrorEvent("only players may use power-ups"))
			return
		}
		room.Post(engine.UsePowerUpCommand{Handle: client, Nickname: nickname, PowerUp: engine.PowerUp(frame.PowerUp)})

	case "START_GAME":
		if role != RoleOrganizer {
			client.Send(engine.NewErrorEvent("only the organizer may start the game"))
			return
		}
		room.Post(engine.StartGameCommand{Handle: client})

	case "NEXT_QUESTION":
		if role != RoleOrganizer {
			client.Send(engine.NewErrorEvent("only the organizer may advance the question"))
			return
		}
		room.Post(engine.NextQuestionCommand{Handle: client})

	case "END_QUIZ":
		if role != RoleOrganizer {
			client.Send(engine.NewErrorEvent("only the organizer may end the quiz"))
			return
		}
		room.Post(engine.EndQuizCommand{Handle: client})

	case "RESET_ROOM":
		if role != RoleOrganizer {
			client.Send(engine.NewErrorEvent("only the organizer may reset the room"))
			return
		}
		cmd := engine.ResetRoomCommand{Handle: client, TimeLimit: frame.TimeLimit}
		if len(frame.Quiz) > 0 {
			q, err := quiz.Parse(frame.Quiz)
			if err != nil {
				client.Send(engine.NewErrorEvent("invalid quiz: " + err.Error()))
				return
			}
			cmd.Quiz = &q
		}
		room.Post(cmd)

	default:
		client.Send(engine.NewErrorEvent("unknown frame type"))
	}
}

// MarshalOrganizerResync encodes an event as JSON, the same encoding
// WritePump uses for outbound frames. No endpoint in this module calls it.
func MarshalOrganizerResync(event any) ([]byte, error) {
	return json.Marshal(event)
}
