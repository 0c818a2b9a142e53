// Command chatcli is a terminal chat client against a running relay. It
// drives the same polling session the storefront widget uses: visitor id and
// read cursor persist in a local state file, a background loop polls for new
// messages, and typed lines are sent as visitor messages.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/tekflox/aiflowx-relay/chatclient"
	"github.com/tekflox/aiflowx-relay/identity"
)

func main() {
	relayURL := flag.String("relay", "http://localhost:8080", "relay base URL")
	host := flag.String("host", "cli", "storefront host label for the visitor id")
	statePath := flag.String("state", defaultStatePath(), "visitor state file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	session, err := chatclient.NewSession(chatclient.Options{
		RelayURL: strings.TrimRight(*relayURL, "/"),
		Host:     *host,
		Store:    identity.NewFileStore(*statePath),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "session setup failed:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := session.Bootstrap(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap failed:", err)
	}

	go func() {
		if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "poll loop stopped:", err)
		}
	}()
	go printLoop(ctx, session)

	fmt.Printf("connected as %s, type a message and press enter\n", session.VisitorID())
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		if err := session.Send(ctx, text); err != nil {
			fmt.Fprintln(os.Stderr, "send failed:", err)
		}
	}
}

// printLoop renders transcript growth. A real widget re-renders from the
// transcript; here we just print entries we haven't shown yet.
func printLoop(ctx context.Context, session *chatclient.Session) {
	printed := 0
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		entries := session.Transcript().Entries()
		if printed > len(entries) {
			// Pending placeholders were cleared; re-sync to the tail.
			printed = len(entries)
		}
		for ; printed < len(entries); printed++ {
			e := entries[printed]
			switch {
			case e.Kind == chatclient.KindError:
				fmt.Printf("! %s\n", e.Content)
			case e.Direction == "inbound" || e.Kind == chatclient.KindPending:
				fmt.Printf("> %s\n", e.Content)
			default:
				fmt.Printf("< %s\n", e.Content)
			}
		}
	}
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatcli.json"
	}
	return filepath.Join(home, ".chatcli.json")
}
