package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/bazaar/internal/convert"
	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

// Apology is what Generate returns when the backend cannot answer.
const Apology = "Sorry, I can't answer right now. Please try again in a moment."

// DefaultTimeout bounds a single call.
const DefaultTimeout = 20 * time.Second

// Options configure Dial.
type Options struct {
	Addr     string
	CACert   string
	Insecure bool
	Timeout  time.Duration
	Token    func() string // session token; nil disables the bearer header
}

// Client calls the assistant service through a circuit breaker.
type Client struct {
	cc      grpc.ClientConnInterface
	close   func() error
	cb      *gobreaker.CircuitBreaker
	log     *zap.Logger
	timeout time.Duration
}

// Dial connects lazily to the assistant at opt.Addr.
func Dial(opt Options, log *zap.Logger) (*Client, error) {
	if opt.Addr == "" {
		return nil, fmt.Errorf("assistant addr: %w", errs.ErrNotConfigured)
	}
	if log == nil {
		log = zap.NewNop()
	}
	creds, err := loadTLS(opt.CACert, opt.Insecure)
	if err != nil {
		return nil, fmt.Errorf("assistant tls: %w", err)
	}
	dopts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithChainUnaryInterceptor(LoggingClient(log)),
	}
	if opt.Token != nil {
		dopts = append(dopts, grpc.WithPerRPCCredentials(bearerCreds{token: opt.Token}))
	}
	cc, err := grpc.NewClient(opt.Addr, dopts...)
	if err != nil {
		return nil, fmt.Errorf("assistant dial: %w", err)
	}
	c := newClient(cc, opt.Timeout, log)
	c.close = cc.Close
	return c, nil
}

func newClient(cc grpc.ClientConnInterface, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	st := gobreaker.Settings{
		Name:        "assistant",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Client{cc: cc, cb: gobreaker.NewCircuitBreaker(st), log: log, timeout: timeout}
}

// Generate answers prompt given the chat history. It never fails: any
// backend error degrades to Apology.
func (c *Client) Generate(ctx context.Context, history []model.Message, prompt string) string {
	text, err := c.call(ctx, GenerateMethod, convert.ToProtoGenerateRequest(history, prompt))
	if err != nil {
		c.log.Warn("assistant - generate - failed", zap.Error(err))
		return Apology
	}
	return text
}

// Summarize condenses history. It returns nil when there is nothing to
// summarize or the backend cannot answer.
func (c *Client) Summarize(ctx context.Context, history []model.Message) *model.Summary {
	if len(convert.TurnsFromMessages(history)) == 0 {
		return nil
	}
	out, err := c.invoke(ctx, SummarizeMethod, convert.ToProtoGenerateRequest(history, ""))
	if err == nil {
		var sum model.Summary
		if sum, err = convert.FromProtoSummary(out); err == nil {
			return &sum
		}
	}
	c.log.Warn("assistant - summarize - failed", zap.Error(err))
	return nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

func (c *Client) call(ctx context.Context, method string, req *structpb.Struct) (string, error) {
	out, err := c.invoke(ctx, method, req)
	if err != nil {
		return "", err
	}
	return convert.FromProtoText(out)
}

func (c *Client) invoke(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	out, err := c.cb.Execute(func() (interface{}, error) {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		resp := new(structpb.Struct)
		if err := c.cc.Invoke(cctx, method, req, resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*structpb.Struct), nil
}

// Disabled is the assistant used when no backend is configured.
type Disabled struct{}

// Generate always returns Apology.
func (Disabled) Generate(context.Context, []model.Message, string) string { return Apology }

// Summarize always returns nil.
func (Disabled) Summarize(context.Context, []model.Message) *model.Summary { return nil }
