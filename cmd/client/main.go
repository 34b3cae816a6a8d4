// Command client is a small terminal chat client. It keeps its conversation
// state locally, starting each chat as a draft that picks up its server id
// from the first streamed event.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"lumen-backend/internal/client"
	"lumen-backend/internal/session"
	"lumen-backend/pkg/logger"
)

func main() {
	var (
		serverURL string
		userID    string
	)
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "chat server base URL")
	flag.StringVar(&userID, "user", "", "user id to chat as")
	flag.Parse()

	if err := logger.Init("warn", "text"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	if userID == "" {
		fmt.Fprintln(os.Stderr, "missing required -user flag")
		os.Exit(1)
	}

	store := session.NewStore()
	engine := session.NewEngine(store, client.NewTransport(serverURL))
	engine.SetUser(userID)
	store.StartCompose()

	fmt.Println("Connected. Type a question, /new for a fresh conversation, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/new":
			store.StartCompose()
			fmt.Println("Starting a new conversation.")
			continue
		}

		ask(engine, line)
	}
}

func ask(engine *session.Engine, question string) {
	var printed int

	sink := session.Sink{
		OnDelta: func(text string) {
			// Print only what arrived since the last callback.
			fmt.Print(text[printed:])
			printed = len(text)
		},
		OnComplete: func(key session.Key, answer string) {
			fmt.Print(answer[min(printed, len(answer)):])
			fmt.Println()
		},
	}

	if _, err := engine.Send(context.Background(), question, sink); err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %v\n", err)
	}
}
