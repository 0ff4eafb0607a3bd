// Command bazaar is a terminal client for the chat and marketplace backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"google.golang.org/grpc/status"

	"github.com/and161185/bazaar/internal/app"
	"github.com/and161185/bazaar/internal/config"
	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/logging"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/store"
)

// ---- utils ----

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(p)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// mediaTypes covers media extensions the platform MIME table may lack.
var mediaTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
}

// attachmentType guesses the message type and MIME type from a file name.
func attachmentType(name string) (model.MessageType, string) {
	ext := strings.ToLower(filepath.Ext(name))
	ct := mediaTypes[ext]
	if ct == "" {
		ct = mime.TypeByExtension(ext)
	}
	if ct == "" {
		ct = "application/octet-stream"
	}
	switch {
	case strings.HasPrefix(ct, "image/"):
		return model.MessageImage, ct
	case strings.HasPrefix(ct, "video/"):
		return model.MessageVideo, ct
	case strings.HasPrefix(ct, "audio/"):
		return model.MessageAudio, ct
	}
	return model.MessageDocument, ct
}

type chatRow struct {
	ID           string `json:"id"`
	With         string `json:"with"`
	Group        bool   `json:"group,omitempty"`
	Unread       int    `json:"unread,omitempty"`
	Disappearing bool   `json:"disappearing,omitempty"`
	Last         string `json:"last"`
	At           string `json:"at"`
}

func chatRows(chats []model.ChatSession) []chatRow {
	rows := make([]chatRow, 0, len(chats))
	for _, c := range chats {
		rows = append(rows, chatRow{
			ID:           c.ID,
			With:         c.Participant.Name,
			Group:        c.IsGroup,
			Unread:       c.Unread,
			Disappearing: c.DisappearingMode,
			Last:         c.LastMessage,
			At:           c.LastTime,
		})
	}
	return rows
}

type messageRow struct {
	ID     string `json:"id"`
	Sender string `json:"sender"`
	Type   string `json:"type"`
	Body   string `json:"body"`
	At     string `json:"at"`
}

func messageRows(msgs []model.Message) []messageRow {
	rows := make([]messageRow, 0, len(msgs))
	for _, m := range msgs {
		rows = append(rows, messageRow{
			ID:     m.ID,
			Sender: m.SenderID,
			Type:   string(m.Type),
			Body:   m.Preview(),
			At:     time.UnixMilli(m.CreatedAt).UTC().Format(time.RFC3339),
		})
	}
	return rows
}

// findChat resolves ref as a chat id or a participant id.
func findChat(st store.State, ref string) (model.ChatSession, error) {
	if c, ok := st.Chat(ref); ok {
		return c, nil
	}
	if c, ok := st.ChatWith(ref); ok {
		return c, nil
	}
	return model.ChatSession{}, fmt.Errorf("chat %q: %w", ref, errs.ErrNotFound)
}

// callPrinter writes a line for every call status change. Subscribe it before
// starting the call so ringing is printed too.
func callPrinter(w io.Writer) store.Listener {
	var (
		mu   sync.Mutex
		last *model.ActiveCall
	)
	return func(s store.State) {
		mu.Lock()
		defer mu.Unlock()
		c := s.ActiveCall
		if c != nil && (last == nil || last.ID != c.ID || last.Status != c.Status) {
			fmt.Fprintf(w, "call %s: %s\n", c.ID, c.Status)
		}
		last = c
	}
}

// findContact resolves id among the hydrated contacts.
func findContact(st store.State, id string) (model.User, error) {
	for _, u := range st.Contacts {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("contact %q: %w", id, errs.ErrNotFound)
}

func usage() {
	fmt.Fprintf(os.Stderr, `bazaar CLI
Usage:
  bazaar [-config file] <cmd> [args]

Commands:
  version
  migrate                                       (applies schema migrations)
  login      -id <user id> [-name <name>]       (dev sign-in, needs database)
  login      -token <jwt>                        (saves an externally issued token)
  logout
  whoami
  chats
  chat       -with <user id>                     (opens or creates the chat with a contact)
  history    -chat <id>
  send       -chat <id> (-text <msg> | -file <path> [-caption c] | -location | -pay <amount>)
  record     -chat <id> [-for 5s]                (voice note from audio.source)
  call       -peer <user id> [-video] [-for 10s]
  summarize  -chat <id>
  join       -space <id>                         (joins, or leaves when already a member)
  view-story -story <id>
  watch                                         (prints live events until ^C)
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration and dispatches subcommands.
func main() {
	cfgPath := flag.String("config", os.Getenv("BAZAAR_CONFIG"), "config file (YAML)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]
	if cmd == "version" {
		fmt.Printf("bazaar %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err)
	}
	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		fail(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd == "migrate" {
		cmdMigrate(ctx, cfg)
		return
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		fail(err)
	}
	defer a.Close()

	switch cmd {
	case "login":
		cmdLogin(ctx, a, args)
	case "logout":
		if err := a.Session.Logout(); err != nil {
			fail(err)
		}
		fmt.Println("ok")
	case "whoami":
		u, err := a.Auth.CurrentUser()
		if err != nil {
			fail(err)
		}
		if u == nil {
			fail(errs.ErrUnauthorized)
		}
		printJSON(u)
	case "chats":
		restore(ctx, a)
		printJSON(chatRows(a.Store.State().Chats))
	case "chat":
		cmdChat(ctx, a, args)
	case "history":
		cmdHistory(ctx, a, args)
	case "send":
		cmdSend(ctx, a, args)
	case "record":
		cmdRecord(ctx, a, args)
	case "call":
		cmdCall(ctx, a, args)
	case "summarize":
		cmdSummarize(ctx, a, args)
	case "join":
		cmdJoin(ctx, a, args)
	case "view-story":
		cmdViewStory(ctx, a, args)
	case "watch":
		cmdWatch(ctx, a)
	default:
		usage()
	}
}

// ---- helpers ----

// restore runs the login flow against the persisted session.
func restore(ctx context.Context, a *app.App) {
	if err := a.Session.Login(ctx); err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			fail(errors.New("not logged in (run: bazaar login)"))
		}
		fail(err)
	}
}

func fail(err error) {
	if s, ok := status.FromError(err); ok {
		fmt.Fprintf(os.Stderr, "rpc error: code=%s msg=%s\n", s.Code(), s.Message())
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
