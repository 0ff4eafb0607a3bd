// Package app assembles the client from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/assistant"
	"github.com/and161185/bazaar/internal/auth"
	"github.com/and161185/bazaar/internal/call"
	"github.com/and161185/bazaar/internal/composer"
	"github.com/and161185/bazaar/internal/config"
	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/expiry"
	"github.com/and161185/bazaar/internal/geo"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/notify"
	"github.com/and161185/bazaar/internal/prefs"
	"github.com/and161185/bazaar/internal/realtime"
	"github.com/and161185/bazaar/internal/repository/postgres"
	"github.com/and161185/bazaar/internal/service"
	"github.com/and161185/bazaar/internal/storage"
	"github.com/and161185/bazaar/internal/store"
)

// PurgeInterval is how often expired messages are deleted from the database.
const PurgeInterval = time.Minute

// AI is what the app needs from the assistant backend.
type AI interface {
	composer.Assistant
	service.Summarizer
}

// App holds the wired client. Chats, Wallet and Accounts are nil without a database.
type App struct {
	Cfg *config.Config
	Log *zap.Logger

	Store    *store.Store
	Auth     *auth.FileAuth
	Prefs    *prefs.Store
	Toaster  *notify.Toaster
	Bridge   *realtime.Bridge
	Typing   *realtime.TypingTracker
	Calls    *call.Controller
	Sweeper  *expiry.Sweeper
	Composer *composer.Composer
	AI       AI

	Session  *service.Session
	Social   *service.Social
	Chats    *service.Chats
	Wallet   *service.Wallet
	Accounts *service.Accounts

	closers []func()
}

// New builds every component. Optional backends that are not configured are
// replaced by their offline variants.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Cfg: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	dir := cfg.ConfigDir
	if dir == "" {
		dir = auth.ConfigDir()
	}
	a.Auth = auth.NewFileAuth(dir)
	a.Prefs = prefs.New(dir)
	theme, err := a.Prefs.Theme()
	if err != nil {
		log.Warn("app - load prefs - failed", zap.Error(err))
	}
	a.Store = store.New(log.Named("store"),
		store.WithDisappearingTTL(cfg.Timing.DisappearingTTL),
		store.WithInitialState(store.Initial(theme)),
	)
	a.closers = append(a.closers, a.Prefs.Follow(a.Store))

	a.Toaster = notify.NewToaster(a.Store, log.Named("toast"), cfg.Timing.ToastDelay)
	a.closers = append(a.closers, a.Toaster.Close)

	tr, err := a.transport()
	if err != nil {
		return nil, err
	}
	a.Bridge = realtime.NewBridge(tr, a.Store, log.Named("realtime"))
	a.closers = append(a.closers, func() { _ = a.Bridge.Disconnect() })
	a.Typing = realtime.NewTypingTracker()
	a.closers = append(a.closers, a.Typing.Attach(a.Bridge))

	a.Calls = call.NewController(a.Store, log.Named("call"), call.WithConnectDelay(cfg.Timing.CallConnectDelay))
	a.closers = append(a.closers, a.Calls.Close)
	a.Sweeper = expiry.NewSweeper(a.Store, log.Named("expiry"), cfg.Timing.SweepInterval)

	a.AI = a.assistant()

	var repos service.Repos
	if cfg.Database.DSN != "" {
		db, err := postgres.New(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		repos = service.Repos{
			Users:   postgres.NewUserRepo(db),
			Chats:   postgres.NewChatRepo(db),
			Catalog: postgres.NewCatalogRepo(db),
			Wallet:  postgres.NewWalletRepo(db),
		}
		a.Chats = service.NewChats(repos.Chats, a.AI, a.owner, log.Named("chats"), service.WithPublisher(a.Bridge))
		a.Wallet = service.NewWallet(repos.Wallet, a.owner)
		a.Accounts = service.NewAccounts(repos.Users, a.Auth, []byte(cfg.Auth.SignKey), cfg.Auth.TokenTTL)
	}
	a.Session = service.NewSession(a.Store, a.Auth, a.Bridge, repos, a.Toaster, log.Named("session"))
	a.Social = service.NewSocial(a.Store, repos.Chats, repos.Catalog, log.Named("social"))

	deps, err := a.composerDeps(ctx)
	if err != nil {
		return nil, err
	}
	a.Composer = composer.New(a.Store, deps, log.Named("composer"),
		composer.WithDebounce(cfg.Timing.TypingDebounce),
		composer.WithAssistantID(cfg.Assistant.BotID),
	)
	a.closers = append(a.closers, a.Composer.Close)

	ok = true
	return a, nil
}

// Run keeps the background loops alive until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	stop := a.Session.WatchAuth()
	defer stop()
	stopRT := a.Session.WatchRealtime()
	defer stopRT()

	go a.Sweeper.Run(ctx)
	if a.Chats == nil {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(PurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := a.Chats.PurgeExpired(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.Log.Warn("app - purge expired - failed", zap.Error(err))
				continue
			}
			if n > 0 {
				a.Log.Debug("app - purge expired - ok", zap.Int64("deleted", n))
			}
		}
	}
}

// Close releases everything New acquired, in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *App) owner() string {
	if u := a.Store.State().CurrentUser; u != nil {
		return u.ID
	}
	return ""
}

func (a *App) token() string {
	tok, err := a.Auth.Token()
	if err != nil {
		return ""
	}
	return tok
}

func (a *App) transport() (realtime.Transport, error) {
	rc := a.Cfg.Realtime
	log := a.Log.Named("realtime")
	switch rc.Transport {
	case "redis":
		if rc.Redis.Addr == "" {
			log.Info("app - realtime - not configured")
			return realtime.Offline{}, nil
		}
		rdb := redis.NewClient(&redis.Options{Addr: rc.Redis.Addr, Password: rc.Redis.Password, DB: rc.Redis.DB})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		return realtime.NewRedisTransport(rdb, rc.Channel, log)
	default:
		tr, err := realtime.NewWSTransport(rc.URL, log)
		if errors.Is(err, errs.ErrNotConfigured) {
			log.Info("app - realtime - not configured")
			return realtime.Offline{}, nil
		}
		return tr, err
	}
}

func (a *App) assistant() AI {
	ac := a.Cfg.Assistant
	c, err := assistant.Dial(assistant.Options{
		Addr:     ac.Addr,
		CACert:   ac.CACert,
		Insecure: ac.Insecure,
		Timeout:  ac.Timeout,
		Token:    a.token,
	}, a.Log.Named("assistant"))
	if err != nil {
		if !errors.Is(err, errs.ErrNotConfigured) {
			a.Log.Warn("app - assistant dial - failed", zap.Error(err))
		}
		return assistant.Disabled{}
	}
	a.closers = append(a.closers, func() { _ = c.Close() })
	return c
}

func (a *App) composerDeps(ctx context.Context) (composer.Deps, error) {
	d := composer.Deps{
		Assistant: a.AI,
		Typing:    a.Bridge,
		Indicator: a.Typing,
		Notifier:  a.Toaster,
	}
	if a.Chats != nil {
		d.Persister = a.Chats
	}
	if a.Wallet != nil {
		d.Ledger = a.Wallet
	}

	sc := a.Cfg.Storage
	s3, err := storage.NewS3Store(ctx, storage.Options{
		Bucket:        sc.Bucket,
		Region:        sc.Region,
		Endpoint:      sc.Endpoint,
		PublicBaseURL: sc.PublicBaseURL,
		KeyPrefix:     sc.KeyPrefix,
		PresignTTL:    sc.PresignTTL,
		ThumbWidth:    sc.ThumbWidth,
	}, a.Log.Named("storage"))
	switch {
	case err == nil:
		d.Uploader, d.Thumbs = s3, s3
	case errors.Is(err, errs.ErrNotConfigured):
		a.Log.Info("app - storage - not configured")
	default:
		return d, fmt.Errorf("storage: %w", err)
	}

	gc := a.Cfg.Geo
	loc, err := geo.NewStatic(model.Position{Lat: gc.Lat, Lng: gc.Lng}, gc.Enabled)
	if err != nil {
		return d, fmt.Errorf("geo: %w", err)
	}
	d.Locator = loc

	if src := a.Cfg.Audio.Source; src != "" {
		d.Recorder = composer.StreamRecorder{Open: openAudio(src)}
	}
	return d, nil
}

func openAudio(src string) func(context.Context) (io.ReadCloser, error) {
	return func(context.Context) (io.ReadCloser, error) {
		if src == "-" {
			return io.NopCloser(os.Stdin), nil
		}
		return os.Open(src)
	}
}
