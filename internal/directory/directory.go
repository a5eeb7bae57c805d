// Package directory implements the Room Directory (C7): crypto-random
// room-code generation with collision retry, room admission control, and
// code -> *engine.Room lookup, grounded on the teacher's GameManager in
// celebrity.go (same crypto/rand letter-alphabet generation, same
// mutex-guarded map-of-games; idle rooms close on their own TTL timer and
// evict themselves through a callback instead of a reaper — generalized from
// hubs keyed by an 8-char mixed-case id to rooms keyed by a 6-char
// uppercase join code, since join codes here are read aloud and typed on
// a phone rather than carried in a cookie).
package directory

import (
	"crypto/rand"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/Seednode/partyboxd/internal/clock"
	"github.com/Seednode/partyboxd/internal/engine"
	"github.com/Seednode/partyboxd/internal/quiz"
)

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // excludes easily-confused 0/O/1/I

const codeLength = 6

// Directory owns every live room in the process.
type Directory struct {
	mu    sync.Mutex
	rooms map[string]*engine.Room

	cfg       engine.RoomConfig
	clk       clock.Clock
	log       zerolog.Logger
	jwtSecret []byte
	maxRooms  int
}

// New constructs an empty Directory. jwtSecret signs organizer tokens
// (SPEC_FULL.md §2); maxRooms <= 0 disables admission control.
func New(cfg engine.RoomConfig, clk clock.Clock, log zerolog.Logger, jwtSecret []byte, maxRooms int) *Directory {
	return &Directory{
		rooms:     make(map[string]*engine.Room),
		cfg:       cfg,
		clk:       clk,
		log:       log,
		jwtSecret: jwtSecret,
		maxRooms:  maxRooms,
	}
}

var ErrDirectoryFull = engine.ErrRoomFull

// organizerClaims is the JWT payload minted for a room's organizer. The
// token is opaque to players; only the Connection Adapter verifies it
// when an incoming connection claims the organizer role.
type organizerClaims struct {
	RoomCode string `json:"room_code"`
	jwt.RegisteredClaims
}

// Create admits a new room if under the configured cap, generates a
// collision-free join code, mints the organizer's JWT, starts the room's
// actor goroutine, and returns both to the caller (the create-room HTTP
// handler).
func (d *Directory) Create(q quiz.Quiz, timeLimitSeconds int) (code string, organizerToken string, err error) {
	d.mu.Lock()
	if d.maxRooms > 0 && len(d.rooms) >= d.maxRooms {
		d.mu.Unlock()
		return "", "", ErrDirectoryFull
	}
	d.mu.Unlock()

	code = d.newRoomCode()

	token, err := d.signOrganizerToken(code)
	if err != nil {
		return "", "", err
	}

	room := engine.NewRoom(code, token, q, timeLimitSeconds, d.cfg, d.clk, d.log, d.evict)

	d.mu.Lock()
	d.rooms[code] = room
	d.mu.Unlock()

	go room.Run()

	return code, token, nil
}

// newRoomCode generates a crypto-random 6-character join code and retries
// on collision, mirroring the teacher's newGameID.
func (d *Directory) newRoomCode() string {
	for {
		buf := make([]byte, codeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, codeLength)
		for i := range out {
			out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
		}
		code := string(out)

		d.mu.Lock()
		_, exists := d.rooms[code]
		d.mu.Unlock()

		if !exists {
			return code
		}
	}
}

func (d *Directory) signOrganizerToken(code string) (string, error) {
	now := d.clk.Now()
	claims := organizerClaims{
		RoomCode: code,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Subject:   "organizer",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(d.jwtSecret)
}

// VerifyOrganizerToken checks that a presented token carries a valid
// signature under the directory's secret and claims the matching room
// code; it does not compare it with the token minted at creation. Tokens are not
// bearer credentials for arbitrary rooms: a token signed for room ABC123
// is only ever accepted by ABC123.
func (d *Directory) VerifyOrganizerToken(code, presented string) bool {
	parsed, err := jwt.ParseWithClaims(presented, &organizerClaims{}, func(t *jwt.Token) (any, error) {
		return d.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return false
	}
	claims, ok := parsed.Claims.(*organizerClaims)
	if !ok {
		return false
	}
	return claims.RoomCode == code
}

// Lookup returns the room for a join code, if one is currently live.
func (d *Directory) Lookup(code string) (*engine.Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[code]
	return r, ok
}

// Count returns the number of currently live rooms.
func (d *Directory) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}

// evict is passed to every Room as its onClose callback, so a closed room
// removes itself from the directory without the directory having to poll
// room state (as the teacher's reaperLoop does via lastActive).
func (d *Directory) evict(code string) {
	d.mu.Lock()
	delete(d.rooms, code)
	d.mu.Unlock()
	d.log.Info().Str("room", code).Msg("room evicted from directory")
}

// CloseAll force-closes every live room, used on graceful process
// shutdown (mirrors the teacher's hub.closeAll fan-out in reaperLoop).
func (d *Directory) CloseAll() {
	d.mu.Lock()
	rooms := make([]*engine.Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

