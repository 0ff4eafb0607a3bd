package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/and161185/bazaar/internal/app"
	"github.com/and161185/bazaar/internal/composer"
	"github.com/and161185/bazaar/internal/config"
	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/migrate"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/realtime"
	"github.com/and161185/bazaar/internal/store"
)

func cmdMigrate(ctx context.Context, cfg *config.Config) {
	if cfg.Database.DSN == "" {
		fail(fmt.Errorf("database.dsn: %w", errs.ErrNotConfigured))
	}
	if err := migrate.Up(ctx, cfg.Database.DSN); err != nil {
		fail(err)
	}
	v, err := migrate.Version(ctx, cfg.Database.DSN)
	if err != nil {
		fail(err)
	}
	fmt.Printf("schema version %d\n", v)
}

func cmdLogin(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	id := fs.String("id", "", "user id (created when missing)")
	name := fs.String("name", "", "display name")
	token := fs.String("token", "", "externally issued session token (JWT)")
	_ = fs.Parse(args)

	switch {
	case *token != "":
		if err := a.Auth.SignIn(*token, model.User{Name: *name}); err != nil {
			fail(err)
		}
	case *id != "" || *name != "":
		if a.Accounts == nil {
			fail(fmt.Errorf("dev sign-in needs database.dsn: %w", errs.ErrNotConfigured))
		}
		if _, err := a.Accounts.SignIn(ctx, *id, *name); err != nil {
			fail(err)
		}
	default:
		fmt.Fprintln(os.Stderr, "need -token or -id/-name")
		os.Exit(1)
	}

	restore(ctx, a)
	printJSON(a.Store.State().CurrentUser)
}

func cmdHistory(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	ref := fs.String("chat", "", "chat or participant id")
	_ = fs.Parse(args)
	if *ref == "" {
		fmt.Fprintln(os.Stderr, "need -chat")
		os.Exit(1)
	}

	restore(ctx, a)
	c, err := findChat(a.Store.State(), *ref)
	if err != nil {
		fail(err)
	}
	printJSON(messageRows(c.Messages))
}

func cmdSend(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	ref := fs.String("chat", "", "chat or participant id")
	text := fs.String("text", "", "message text")
	file := fs.String("file", "", "attachment ('-'=stdin)")
	caption := fs.String("caption", "", "attachment caption")
	location := fs.Bool("location", false, "share the configured location")
	pay := fs.Float64("pay", 0, "send a payment of this amount")
	_ = fs.Parse(args)
	if *ref == "" {
		fmt.Fprintln(os.Stderr, "need -chat")
		os.Exit(1)
	}

	restore(ctx, a)
	c, err := findChat(a.Store.State(), *ref)
	if err != nil {
		fail(err)
	}

	var m model.Message
	switch {
	case *file != "":
		data, err := readAll(*file)
		if err != nil {
			fail(err)
		}
		name := filepath.Base(*file)
		if *file == "-" {
			name = "stdin"
		}
		typ, ct := attachmentType(name)
		m, err = a.Composer.SendAttachment(ctx, c.ID, composer.Attachment{
			Type: typ, Name: name, ContentType: ct, Data: data, Caption: *caption,
		})
		if err != nil {
			fail(err)
		}
	case *location:
		m, err = a.Composer.SendLocation(ctx, c.ID)
	case *pay != 0:
		m, err = a.Composer.SendPayment(ctx, c.ID, *pay)
	case *text != "":
		m, err = a.Composer.SendText(ctx, c.ID, *text, nil)
	default:
		fmt.Fprintln(os.Stderr, "need -text, -file, -location or -pay")
		os.Exit(1)
	}
	if err != nil {
		fail(err)
	}
	a.Composer.Wait()
	printJSON(messageRows([]model.Message{m}))
}

func cmdRecord(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	ref := fs.String("chat", "", "chat or participant id")
	dur := fs.Duration("for", 5*time.Second, "capture length")
	_ = fs.Parse(args)
	if *ref == "" || *dur <= 0 {
		fmt.Fprintln(os.Stderr, "need -chat and a positive -for")
		os.Exit(1)
	}

	restore(ctx, a)
	c, err := findChat(a.Store.State(), *ref)
	if err != nil {
		fail(err)
	}
	if err := a.Composer.StartRecording(ctx, c.ID); err != nil {
		fail(err)
	}
	send := true
	select {
	case <-time.After(*dur):
	case <-ctx.Done():
		send = false
	}
	m, err := a.Composer.StopRecording(context.WithoutCancel(ctx), send)
	if err != nil {
		fail(err)
	}
	if m == nil {
		fmt.Println("discarded")
		return
	}
	a.Composer.Wait()
	printJSON(messageRows([]model.Message{*m}))
}

func cmdCall(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	peer := fs.String("peer", "", "user id to call")
	video := fs.Bool("video", false, "video call")
	dur := fs.Duration("for", 10*time.Second, "hang up after")
	_ = fs.Parse(args)
	if *peer == "" {
		fmt.Fprintln(os.Stderr, "need -peer")
		os.Exit(1)
	}

	restore(ctx, a)
	st := a.Store.State()
	who := model.User{ID: *peer, Name: *peer}
	for _, u := range st.Contacts {
		if u.ID == *peer {
			who = u
			break
		}
	}
	typ := model.CallAudio
	if *video {
		typ = model.CallVideo
	}

	stop := a.Store.Subscribe(callPrinter(os.Stdout))
	id := a.Calls.Start(who, typ)
	select {
	case <-time.After(*dur):
	case <-ctx.Done():
	}
	secs := a.Calls.Duration()
	a.Calls.End()
	stop()
	fmt.Printf("call %s ended after %ds\n", id, secs)
}

func cmdChat(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	with := fs.String("with", "", "contact user id")
	_ = fs.Parse(args)
	if *with == "" {
		fmt.Fprintln(os.Stderr, "need -with")
		os.Exit(1)
	}

	restore(ctx, a)
	u, err := findContact(a.Store.State(), *with)
	if err != nil {
		fail(err)
	}
	c, err := a.Social.StartChat(ctx, u)
	if err != nil {
		fail(err)
	}
	printJSON(chatRows([]model.ChatSession{c}))
}

func cmdJoin(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	space := fs.String("space", "", "space id (leaves when already joined)")
	_ = fs.Parse(args)
	if *space == "" {
		fmt.Fprintln(os.Stderr, "need -space")
		os.Exit(1)
	}

	restore(ctx, a)
	sp, err := a.Social.ToggleSpace(ctx, *space)
	if err != nil {
		fail(err)
	}
	printJSON(sp)
}

func cmdViewStory(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("view-story", flag.ExitOnError)
	story := fs.String("story", "", "story id")
	_ = fs.Parse(args)
	if *story == "" {
		fmt.Fprintln(os.Stderr, "need -story")
		os.Exit(1)
	}

	restore(ctx, a)
	if err := a.Social.ViewStory(ctx, *story); err != nil {
		fail(err)
	}
	fmt.Println("ok")
}

func cmdSummarize(ctx context.Context, a *app.App, args []string) {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	ref := fs.String("chat", "", "chat or participant id")
	_ = fs.Parse(args)
	if *ref == "" {
		fmt.Fprintln(os.Stderr, "need -chat")
		os.Exit(1)
	}
	if a.Chats == nil {
		fail(fmt.Errorf("summaries need database.dsn: %w", errs.ErrNotConfigured))
	}

	restore(ctx, a)
	c, err := findChat(a.Store.State(), *ref)
	if err != nil {
		fail(err)
	}
	sum, err := a.Chats.Summarize(ctx, c.ID)
	if err != nil {
		fail(err)
	}
	if sum == nil {
		fmt.Println("no summary available")
		return
	}
	printJSON(sum)
}

func cmdWatch(ctx context.Context, a *app.App) {
	restore(ctx, a)
	if !a.Bridge.Connected() {
		fmt.Fprintln(os.Stderr, "live updates unavailable; expiry still runs")
	}

	offMsg := a.Bridge.On(realtime.EventNewMessage, func(env realtime.Envelope) {
		var row realtime.MessageRow
		if err := json.Unmarshal(env.Payload, &row); err == nil {
			printJSON(messageRows([]model.Message{row.Message(a.Store.Now())}))
		}
	})
	defer offMsg()
	a.Typing.OnChange(func(chatID string, typing bool) {
		if typing {
			fmt.Printf("%s: typing...\n", chatID)
		}
	})
	var mu sync.Mutex
	seen := make(map[string]bool)
	stop := a.Store.Subscribe(func(s store.State) {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range s.Notifications {
			if !seen[n.ID] {
				seen[n.ID] = true
				fmt.Printf("[%s] %s\n", n.Severity, n.Message)
			}
		}
	})
	defer stop()

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fail(err)
	}
}
