/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	allowedOrigins        []string
	bind                  string
	heartbeatInterval     time.Duration
	jwtSecret             string
	maxPlayersPerRoom     int
	maxRooms              int
	organizerGrace        time.Duration
	outboundQueueSize     int
	playerTimeout         time.Duration
	port                  int
	prefix                string
	profile               bool
	roomTTL               time.Duration
	tlsCert               string
	tlsKey                string
	verbose               bool
	version               bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.maxPlayersPerRoom < 0 {
		return errors.New("--max-players-per-room must not be negative")
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// resolvedJWTSecret returns the configured signing secret, generating a
// process-lifetime random one if none was supplied. A random secret is
// fine for a single-process deployment (organizer tokens never need to
// outlive the process that minted them) but is regenerated on every
// restart, so a configured secret is required for anything behind a load
// balancer with more than one instance.
func (c *Config) resolvedJWTSecret() ([]byte, error) {
	if c.jwtSecret != "" {
		return []byte(c.jwtSecret), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating a random jwt secret: %w", err)
	}
	return []byte(hex.EncodeToString(buf)), nil
}

func (c *Config) checkOrigin() func(r *http.Request) bool {
	if len(c.allowedOrigins) == 0 {
		return func(r *http.Request) bool { return true }
	}
	allowed := make(map[string]bool, len(c.allowedOrigins))
	for _, o := range c.allowedOrigins {
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return allowed[origin]
	}
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PARTYBOXD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var allowedOrigins []string

	cmd := &cobra.Command{
		Use:           "partyboxd...",
		Short:         "A realtime multiplayer quiz room server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.allowedOrigins = allowedOrigins
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: PARTYBOXD_BIND)")
	fs.StringSliceVar(&allowedOrigins, "allowed-origin", nil, "allowed websocket Origin header value, may be repeated (env: PARTYBOXD_ALLOWED_ORIGIN)")
	fs.DurationVar(&cfg.heartbeatInterval, "heartbeat-interval", 20*time.Second, "interval between websocket ping frames (env: PARTYBOXD_HEARTBEAT_INTERVAL)")
	fs.StringVar(&cfg.jwtSecret, "jwt-secret", "", "secret used to sign organizer tokens; random per-process if unset (env: PARTYBOXD_JWT_SECRET)")
	fs.IntVar(&cfg.maxPlayersPerRoom, "max-players-per-room", 250, "maximum players per room, counting disconnected players not yet removed, 0 disables the cap (env: PARTYBOXD_MAX_PLAYERS_PER_ROOM)")
	fs.IntVar(&cfg.maxRooms, "max-rooms", 0, "maximum concurrently live rooms, 0 disables the cap (env: PARTYBOXD_MAX_ROOMS)")
	fs.DurationVar(&cfg.organizerGrace, "organizer-grace", 90*time.Second, "time an organizer's disconnect is tolerated before the room closes (env: PARTYBOXD_ORGANIZER_GRACE)")
	fs.IntVar(&cfg.outboundQueueSize, "outbound-queue-size", 32, "per-connection bounded outbound event queue depth (env: PARTYBOXD_OUTBOUND_QUEUE_SIZE)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before a disconnected player is removed from a room (env: PARTYBOXD_PLAYER_TIMEOUT)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: PARTYBOXD_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: PARTYBOXD_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: PARTYBOXD_PROFILE)")
	fs.DurationVar(&cfg.roomTTL, "room-ttl", 6*time.Hour, "time a room may sit idle before it is closed (env: PARTYBOXD_ROOM_TTL)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: PARTYBOXD_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: PARTYBOXD_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: PARTYBOXD_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: PARTYBOXD_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("partyboxd v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
