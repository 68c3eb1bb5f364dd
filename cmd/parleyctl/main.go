package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/bus"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/gateway"
	"github.com/parley-chat/parley/internal/model"
	"github.com/parley-chat/parley/internal/profile"
	"github.com/parley-chat/parley/internal/store"
	"go.uber.org/zap"
)

type env struct {
	cfg     *config.Config
	db      *store.DB
	gw      *gateway.Gateway
	session *auth.Store
}

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	e, cleanup, err := setup(profileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	timeout := time.Duration(e.cfg.RequestTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch args[0] {
	case "login":
		if len(args) != 3 {
			fmt.Fprintln(os.Stderr, "usage: parleyctl login <email> <password>")
			os.Exit(1)
		}
		cmdLogin(ctx, e, args[1], args[2])
	case "logout":
		cmdLogout(e)
	case "whoami":
		cmdWhoami(e, *jsonFlag)
	case "chats":
		cmdChats(ctx, e, *jsonFlag)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: parleyctl send <chat-id> <text>")
			os.Exit(1)
		}
		cmdSend(ctx, e, args[1], strings.Join(args[2:], " "))
	case "search":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: parleyctl search <query>")
			os.Exit(1)
		}
		cmdSearch(ctx, e, strings.Join(args[1:], " "), *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: parleyctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  login <email> <password>   Sign in and store the credential")
	fmt.Fprintln(os.Stderr, "  logout                     Drop the stored credential")
	fmt.Fprintln(os.Stderr, "  whoami                     Show the authenticated identity")
	fmt.Fprintln(os.Stderr, "  chats                      List conversations")
	fmt.Fprintln(os.Stderr, "  send <chat-id> <text>      Send a message over HTTP")
	fmt.Fprintln(os.Stderr, "  search <query>             Search messages")
}

func setup(profileName string) (*env, func(), error) {
	if err := profile.EnsureDir(profileName); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(profile.ConfigPath())
	if err != nil {
		return nil, nil, err
	}

	db, err := store.Open(profile.DBPath(profileName))
	if err != nil {
		return nil, nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	gw := gateway.New(cfg.ServerURL, cfg.AppID, timeout, zap.NewNop())
	session := auth.New(db, gw, bus.New(), zap.NewNop())
	session.Restore()

	e := &env{cfg: cfg, db: db, gw: gw, session: session}
	return e, func() { _ = db.Close() }, nil
}

func requireAuth(e *env) {
	if e.session.State() != auth.Authenticated {
		fmt.Fprintln(os.Stderr, "error: not logged in, run: parleyctl login <email> <password>")
		os.Exit(1)
	}
}

func cmdLogin(ctx context.Context, e *env, email, password string) {
	if err := e.session.Login(ctx, email, password); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if id := e.session.Identity(); id != nil {
		fmt.Printf("Logged in as %s (%s)\n", id.DisplayName, id.ID)
	} else {
		fmt.Println("Logged in")
	}
}

func cmdLogout(e *env) {
	e.session.Logout()
	fmt.Println("Logged out")
}

func cmdWhoami(e *env, jsonOut bool) {
	requireAuth(e)
	id := e.session.Identity()
	if id == nil {
		fmt.Fprintln(os.Stderr, "error: no identity stored")
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(id)
		return
	}
	fmt.Printf("ID:    %s\n", id.ID)
	fmt.Printf("Name:  %s\n", id.DisplayName)
}

func cmdChats(ctx context.Context, e *env, jsonOut bool) {
	requireAuth(e)
	chats, err := e.gw.ListChats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(chats)
		return
	}
	for _, c := range chats {
		name := c.Name
		if name == "" {
			name = c.ID
		}
		marker := " "
		if c.UnreadCount > 0 {
			marker = "*"
		}
		fmt.Printf("%s %-30s %s\n", marker, name, c.ID)
	}
}

func cmdSend(ctx context.Context, e *env, chatID, text string) {
	requireAuth(e)
	msg, err := e.gw.SendMessage(ctx, chatID, gateway.SendMessageRequest{Text: text, Type: model.TypeText})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Sent %s\n", msg.ID)
}

func cmdSearch(ctx context.Context, e *env, query string, jsonOut bool) {
	requireAuth(e)
	results, err := e.gw.SearchMessages(ctx, query, 50)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if jsonOut {
		outputJSON(results)
		return
	}
	for _, m := range results {
		fmt.Printf("[%s] %s: %s\n", m.ChatID, m.SenderName, m.Body)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
