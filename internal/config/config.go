// Package config loads client and dev server settings from the environment,
// then lets command-line flags override them.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/roomchat/roomchat/internal/conn"
	"github.com/roomchat/roomchat/internal/model"
)

var errNoFlagSet = errors.New("flag parser is required")

// Client holds chat client configuration.
type Client struct {
	Endpoint         string        `env:"ROOMCHAT_ENDPOINT"          envDefault:"ws://localhost:5000/ws"`
	Rooms            []string      `env:"ROOMCHAT_ROOMS"             envDefault:"general,random" envSeparator:","`
	HandshakeTimeout time.Duration `env:"ROOMCHAT_HANDSHAKE_TIMEOUT" envDefault:"10s"`
	WriteWait        time.Duration `env:"ROOMCHAT_WRITE_WAIT"        envDefault:"10s"`
	PongWait         time.Duration `env:"ROOMCHAT_PONG_WAIT"         envDefault:"60s"`
	SendBuffer       int           `env:"ROOMCHAT_SEND_BUFFER"       envDefault:"256"`
	LogFile          string        `env:"ROOMCHAT_LOG_FILE"          envDefault:"roomchat.log"`
}

// Server holds dev server configuration.
type Server struct {
	Addr         string `env:"ROOMCHAT_SERVER_ADDR"   envDefault:":5000"`
	DBPath       string `env:"ROOMCHAT_DB_PATH"       envDefault:"data/roomchat.db"`
	HistoryLimit int    `env:"ROOMCHAT_HISTORY_LIMIT" envDefault:"50"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseClient parses environment and flags into a Client config.
func ParseClient(fs *flag.FlagSet, args []string) (Client, error) {
	if fs == nil {
		return Client{}, errNoFlagSet
	}
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return Client{}, err
	}

	rooms := strings.Join(cfg.Rooms, ",")
	fs.StringVar(&cfg.Endpoint, "endpoint", cfg.Endpoint, "chat server websocket endpoint")
	fs.StringVar(&rooms, "rooms", rooms, "comma-separated room names; the first is the default room")
	fs.DurationVar(&cfg.HandshakeTimeout, "handshake-timeout", cfg.HandshakeTimeout, "websocket handshake timeout")
	fs.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "file receiving the client log")
	if err := parseArgs(fs, args); err != nil {
		return Client{}, err
	}

	cfg.Rooms = strings.Split(rooms, ",")
	if _, err := cfg.RoomSet(); err != nil {
		return Client{}, err
	}
	return cfg, nil
}

// ParseServer parses environment and flags into a Server config.
func ParseServer(fs *flag.FlagSet, args []string) (Server, error) {
	if fs == nil {
		return Server{}, errNoFlagSet
	}
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return Server{}, err
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "dev server listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	fs.IntVar(&cfg.HistoryLimit, "history-limit", cfg.HistoryLimit, "messages replayed to a joining client")
	if err := parseArgs(fs, args); err != nil {
		return Server{}, err
	}

	if cfg.HistoryLimit < 0 {
		return Server{}, fmt.Errorf("history limit must not be negative: %d", cfg.HistoryLimit)
	}
	return cfg, nil
}

// RoomSet returns the configured rooms.
func (c Client) RoomSet() (model.RoomSet, error) {
	rooms, err := model.NewRoomSet(c.Rooms...)
	if err != nil {
		return model.RoomSet{}, fmt.Errorf("invalid rooms %q: %w", strings.Join(c.Rooms, ","), err)
	}
	return rooms, nil
}

// ConnOptions returns the connection pump settings.
func (c Client) ConnOptions() conn.Options {
	return conn.Options{
		WriteWait:  c.WriteWait,
		PongWait:   c.PongWait,
		SendBuffer: c.SendBuffer,
	}
}

func parseArgs(fs *flag.FlagSet, args []string) error {
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}
