// Package composer turns user input into optimistic chat messages and
// best-effort remote effects.
package composer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
	"github.com/and161185/bazaar/internal/store"
)

var tracer = otel.Tracer("github.com/and161185/bazaar/internal/composer")

// DefaultDebounce is the idle window after which typing=false is sent.
const DefaultDebounce = 2 * time.Second

// DefaultOfflineReply is what the assistant answers while the device is offline.
const DefaultOfflineReply = "I'm offline right now. I'll be able to help once you're back online."

// PaymentCompleted is the metadata status of a sent payment.
const PaymentCompleted = "completed"

// Dispatcher is the part of the store the composer needs.
type Dispatcher interface {
	Dispatch(a store.Action) store.State
	State() store.State
	Now() time.Time
	NewID() string
	DisappearingTTL() time.Duration
}

// Uploader stores bytes and returns their URL. It fails loudly.
type Uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// Thumbnailer stores a preview of an image and returns its URL.
type Thumbnailer interface {
	UploadThumbnail(ctx context.Context, name string, data []byte) (string, error)
}

// Locator resolves the device position.
type Locator interface {
	CurrentPosition(ctx context.Context) (model.Position, error)
}

// Persister records a sent message remotely.
type Persister interface {
	PersistMessage(ctx context.Context, chatID string, m model.Message) error
}

// Ledger records a wallet transaction remotely.
type Ledger interface {
	Record(ctx context.Context, tx model.Transaction) error
}

// Assistant generates bot replies. It never fails; it degrades to a fixed text.
type Assistant interface {
	Generate(ctx context.Context, history []model.Message, prompt string) string
}

// TypingSender broadcasts the local user's typing state.
type TypingSender interface {
	SendTyping(ctx context.Context, chatID string, isTyping bool) error
}

// TypingIndicator is the local per-chat "is typing" display.
type TypingIndicator interface {
	Set(chatID, userID string, typing bool)
	Clear(chatID string)
}

// Notifier surfaces failures to the user.
type Notifier interface {
	Error(msg string) string
}

// Deps are the collaborators of a Composer. Nil collaborators disable the
// features that need them.
type Deps struct {
	Uploader  Uploader
	Thumbs    Thumbnailer
	Locator   Locator
	Persister Persister
	Ledger    Ledger
	Assistant Assistant
	Typing    TypingSender
	Indicator TypingIndicator
	Notifier  Notifier
	Recorder  Recorder
}

// Attachment is a media payload to upload and send.
type Attachment struct {
	Type        model.MessageType // image, video, audio or document
	Name        string
	ContentType string
	Data        []byte
	Duration    time.Duration
	Caption     string
}

// Composer is the chat input pipeline. Remote effects run in the background;
// Wait blocks until they finish.
type Composer struct {
	st       Dispatcher
	d        Deps
	log      *zap.Logger
	debounce time.Duration
	botID    string
	offline  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	typing  map[string]pendingIdle
	gen     uint64
	rec     Recording
	recChat string
}

type pendingIdle struct {
	t   *time.Timer
	gen uint64
}

// Option configures a Composer.
type Option func(*Composer)

// WithDebounce overrides the typing debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Composer) { c.debounce = d }
}

// WithAssistantID marks chats with this participant as bot conversations.
func WithAssistantID(id string) Option {
	return func(c *Composer) { c.botID = id }
}

// WithOfflineReply overrides the canned assistant reply used while offline.
func WithOfflineReply(text string) Option {
	return func(c *Composer) { c.offline = text }
}

// New constructs a Composer.
func New(st Dispatcher, d Deps, log *zap.Logger, opts ...Option) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Composer{
		st:       st,
		d:        d,
		log:      log,
		debounce: DefaultDebounce,
		offline:  DefaultOfflineReply,
		ctx:      ctx,
		cancel:   cancel,
		typing:   make(map[string]pendingIdle),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SendText appends a text message and persists it in the background.
func (c *Composer) SendText(ctx context.Context, chatID, text string, replyTo *model.ReplySnapshot) (model.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, errors.New("validation: empty text")
	}
	c.StopTyping(chatID)

	m, err := c.send(ctx, store.SendMessage{ChatID: chatID, Text: text, Type: model.MessageText, ReplyTo: replyTo})
	if err != nil {
		return model.Message{}, err
	}
	if c.isBot(chatID) {
		c.replyAsBot(chatID, m)
	}
	return m, nil
}

// SendAttachment uploads a media payload and appends it as a message.
func (c *Composer) SendAttachment(ctx context.Context, chatID string, att Attachment) (model.Message, error) {
	switch att.Type {
	case model.MessageImage, model.MessageVideo, model.MessageAudio, model.MessageDocument:
	default:
		return model.Message{}, fmt.Errorf("validation: unsupported attachment type %q", att.Type)
	}
	if len(att.Data) == 0 {
		return model.Message{}, errors.New("validation: empty attachment")
	}
	if c.d.Uploader == nil {
		return model.Message{}, fmt.Errorf("storage: %w", errs.ErrNotConfigured)
	}
	if _, ok := c.st.State().Chat(chatID); !ok {
		return model.Message{}, fmt.Errorf("chat %s: %w", chatID, errs.ErrNotFound)
	}

	ctx, span := tracer.Start(ctx, "Composer.SendAttachment", trace.WithAttributes(
		attribute.String("chat.id", chatID),
		attribute.String("attachment.type", string(att.Type)),
		attribute.Int("attachment.size", len(att.Data)),
	))
	defer span.End()

	url, err := c.d.Uploader.Upload(ctx, att.Name, att.ContentType, att.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		c.log.Warn("composer - attachment - upload failed", zap.String("chat_id", chatID), zap.Error(err))
		c.notify("Upload failed: " + att.Name)
		return model.Message{}, fmt.Errorf("upload: %w", err)
	}

	md := &model.Metadata{URL: url, FileName: att.Name, FileSize: int64(len(att.Data))}
	if att.Duration > 0 {
		md.Duration = att.Duration.Seconds()
	}
	if att.Type == model.MessageImage && c.d.Thumbs != nil {
		if thumb, err := c.d.Thumbs.UploadThumbnail(ctx, att.Name, att.Data); err != nil {
			c.log.Warn("composer - attachment - thumbnail failed", zap.Error(err))
		} else {
			md.ThumbnailURL = thumb
		}
	}
	return c.send(ctx, store.SendMessage{ChatID: chatID, Text: att.Caption, Type: att.Type, Metadata: md})
}

// SendLocation appends the device position as a location message.
func (c *Composer) SendLocation(ctx context.Context, chatID string) (model.Message, error) {
	if c.d.Locator == nil {
		return model.Message{}, fmt.Errorf("geolocation: %w", errs.ErrNotConfigured)
	}
	pos, err := c.d.Locator.CurrentPosition(ctx)
	if err != nil {
		c.log.Warn("composer - location - unavailable", zap.Error(err))
		c.notify("Location unavailable")
		return model.Message{}, fmt.Errorf("geolocation: %w", err)
	}
	return c.send(ctx, store.SendMessage{
		ChatID:   chatID,
		Type:     model.MessageLocation,
		Metadata: &model.Metadata{Lat: pos.Lat, Lng: pos.Lng},
	})
}

// SendPayment appends a payment message and records a ledger entry. The two
// effects are independent: a ledger failure leaves the message in place.
func (c *Composer) SendPayment(ctx context.Context, chatID string, amount float64) (model.Message, error) {
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return model.Message{}, fmt.Errorf("validation: invalid amount %v", amount)
	}
	chat, ok := c.st.State().Chat(chatID)
	if !ok {
		return model.Message{}, fmt.Errorf("chat %s: %w", chatID, errs.ErrNotFound)
	}

	m, err := c.send(ctx, store.SendMessage{
		ChatID:   chatID,
		Type:     model.MessagePayment,
		Metadata: &model.Metadata{Amount: amount, Status: PaymentCompleted},
	})
	if err != nil {
		return model.Message{}, err
	}

	tx := model.Transaction{
		ID:     c.st.NewID(),
		Type:   model.TxSent,
		Amount: amount,
		Date:   c.st.Now(),
		Entity: chat.Participant.Name,
	}
	c.st.Dispatch(store.AddTransaction{Transaction: tx})
	if c.d.Ledger != nil {
		c.spawn(func(ctx context.Context) {
			if err := c.d.Ledger.Record(ctx, tx); err != nil {
				c.log.Warn("composer - payment - ledger failed", zap.String("tx_id", tx.ID), zap.Error(err))
				c.notify("Payment was sent but not recorded in your wallet")
			}
		})
	}
	return m, nil
}

// Keystroke reports the current input of chatID. Every non-empty keystroke
// sends typing=true and restarts the debounce window, after which
// typing=false is sent.
func (c *Composer) Keystroke(chatID, text string) {
	if strings.TrimSpace(text) == "" {
		c.StopTyping(chatID)
		return
	}

	c.mu.Lock()
	if p, ok := c.typing[chatID]; ok {
		p.t.Stop()
	}
	c.gen++
	g := c.gen
	c.typing[chatID] = pendingIdle{t: time.AfterFunc(c.debounce, func() { c.idle(chatID, g) }), gen: g}
	c.mu.Unlock()

	c.signal(chatID, true)
}

// StopTyping cancels the pending debounce of chatID and sends typing=false.
func (c *Composer) StopTyping(chatID string) {
	c.mu.Lock()
	p, ok := c.typing[chatID]
	if ok {
		p.t.Stop()
		delete(c.typing, chatID)
	}
	c.mu.Unlock()
	if ok {
		c.signal(chatID, false)
	}
}

// CloseChat releases per-chat timers when its window goes away.
func (c *Composer) CloseChat(chatID string) {
	c.StopTyping(chatID)
	if c.d.Indicator != nil {
		c.d.Indicator.Clear(chatID)
	}
}

// Wait blocks until all background effects have finished.
func (c *Composer) Wait() { c.wg.Wait() }

// Close stops every timer, discards an unfinished recording and waits for
// background effects, which see a cancelled context.
func (c *Composer) Close() {
	c.cancel()

	c.mu.Lock()
	for id, p := range c.typing {
		p.t.Stop()
		delete(c.typing, id)
	}
	rec := c.rec
	c.rec, c.recChat = nil, ""
	c.mu.Unlock()

	if rec != nil {
		rec.Discard()
	}
	c.wg.Wait()
}

// pendingTimers returns the number of armed debounce timers.
func (c *Composer) pendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.typing)
}

func (c *Composer) send(ctx context.Context, a store.SendMessage) (model.Message, error) {
	_, span := tracer.Start(ctx, "Composer.send", trace.WithAttributes(
		attribute.String("chat.id", a.ChatID),
		attribute.String("message.type", string(a.Type)),
	))
	defer span.End()

	chat, ok := c.st.State().Chat(a.ChatID)
	if !ok {
		err := fmt.Errorf("chat %s: %w", a.ChatID, errs.ErrNotFound)
		span.RecordError(err)
		return model.Message{}, err
	}
	a.ID = c.st.NewID()
	if chat.DisappearingMode {
		exp := c.st.Now().Add(c.st.DisappearingTTL()).UnixMilli()
		a.ExpiresAt = &exp
	}

	s := c.st.Dispatch(a)
	chat, ok = s.Chat(a.ChatID)
	if !ok || len(chat.Messages) == 0 {
		return model.Message{}, fmt.Errorf("chat %s: %w", a.ChatID, errs.ErrNotFound)
	}
	var m model.Message
	found := false
	for i := len(chat.Messages) - 1; i >= 0; i-- {
		if chat.Messages[i].ID == a.ID {
			m, found = chat.Messages[i], true
			break
		}
	}
	if !found {
		return model.Message{}, fmt.Errorf("message %s: %w", a.ID, errs.ErrNotFound)
	}

	if c.d.Persister != nil {
		chatID := a.ChatID
		c.spawn(func(ctx context.Context) {
			if err := c.d.Persister.PersistMessage(ctx, chatID, m); err != nil {
				c.log.Warn("composer - send - persist failed",
					zap.String("chat_id", chatID), zap.String("message_id", m.ID), zap.Error(err))
				c.notify("Message could not be delivered")
			}
		})
	}
	return m, nil
}

func (c *Composer) isBot(chatID string) bool {
	if c.botID == "" {
		return false
	}
	chat, ok := c.st.State().Chat(chatID)
	return ok && !chat.IsGroup && chat.Participant.ID == c.botID
}

func (c *Composer) replyAsBot(chatID string, prompt model.Message) {
	s := c.st.State()
	if !s.IsOnline || c.d.Assistant == nil {
		c.receiveFromBot(chatID, c.offline)
		return
	}
	chat, _ := s.Chat(chatID)
	history := make([]model.Message, 0, len(chat.Messages))
	for _, m := range chat.Messages {
		if m.ID != prompt.ID {
			history = append(history, m)
		}
	}

	c.indicate(chatID, true)
	c.spawn(func(ctx context.Context) {
		defer c.indicate(chatID, false)
		reply := c.d.Assistant.Generate(ctx, history, prompt.Text)
		c.receiveFromBot(chatID, reply)
	})
}

func (c *Composer) receiveFromBot(chatID, text string) {
	c.st.Dispatch(store.ReceiveMessage{ChatID: chatID, Message: model.Message{
		ID:       c.st.NewID(),
		SenderID: c.botID,
		Text:     text,
		Type:     model.MessageText,
	}})
}

func (c *Composer) indicate(chatID string, on bool) {
	if c.d.Indicator != nil {
		c.d.Indicator.Set(chatID, c.botID, on)
	}
}

func (c *Composer) idle(chatID string, gen uint64) {
	c.mu.Lock()
	p, ok := c.typing[chatID]
	if !ok || p.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.typing, chatID)
	c.mu.Unlock()
	c.signal(chatID, false)
}

func (c *Composer) signal(chatID string, on bool) {
	if c.d.Typing == nil {
		return
	}
	if err := c.d.Typing.SendTyping(c.ctx, chatID, on); err != nil {
		c.log.Debug("composer - typing - not sent", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (c *Composer) notify(msg string) {
	if c.d.Notifier != nil {
		c.d.Notifier.Error(msg)
	}
}

func (c *Composer) spawn(fn func(ctx context.Context)) {
	if c.ctx.Err() != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}
