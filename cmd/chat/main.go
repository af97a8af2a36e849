package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roomchat/roomchat/internal/config"
	"github.com/roomchat/roomchat/internal/conn"
	"github.com/roomchat/roomchat/internal/session"
	"github.com/roomchat/roomchat/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ParseClient(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	// The terminal belongs to the UI; logs go to a file.
	logFile, err := tea.LogToFile(cfg.LogFile, "chat")
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	rooms, err := cfg.RoomSet()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HandshakeTimeout)
	defer cancel()

	client, err := session.Start(ctx, conn.NewWebSocketDialer(cfg.HandshakeTimeout), session.Config{
		Endpoint: cfg.Endpoint,
		Rooms:    rooms,
		Conn:     cfg.ConnOptions(),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", cfg.Endpoint, err)
	}
	defer client.Close()

	log.Printf("Chat session on %s (%s)", client.Endpoint(), client.ConnectionID())

	p := tea.NewProgram(tui.New(client), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}
