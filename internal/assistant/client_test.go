package assistant

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/and161185/bazaar/internal/convert"
	"github.com/and161185/bazaar/internal/errs"
	"github.com/and161185/bazaar/internal/model"
)

type fakeServer struct {
	calls   atomic.Int32
	fail    atomic.Bool
	lastLen atomic.Int32
}

func (f *fakeServer) Generate(_ context.Context, prompt string, h []convert.Turn) (string, error) {
	f.calls.Add(1)
	f.lastLen.Store(int32(len(h)))
	if f.fail.Load() {
		return "", errors.New("model overloaded")
	}
	return "re: " + prompt, nil
}

func (f *fakeServer) Summarize(_ context.Context, h []convert.Turn) (model.Summary, error) {
	f.calls.Add(1)
	return Rules{}.Summarize(context.Background(), h)
}

func startServer(t *testing.T, srv Server) *grpc.ClientConn {
	t.Helper()
	log := zaptest.NewLogger(t)
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)))
	RegisterServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithChainUnaryInterceptor(LoggingClient(log)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })
	return cc
}

func TestGenerate_OK(t *testing.T) {
	srv := &fakeServer{}
	c := newClient(startServer(t, srv), time.Second, zaptest.NewLogger(t))

	hist := []model.Message{{SenderID: "me", Text: "hi"}, {SenderID: "bot", Text: "hello"}}
	require.Equal(t, "re: help", c.Generate(context.Background(), hist, "help"))
	require.EqualValues(t, 2, srv.lastLen.Load())
}

func TestGenerate_DegradesAndTrips(t *testing.T) {
	srv := &fakeServer{}
	srv.fail.Store(true)
	c := newClient(startServer(t, srv), time.Second, zaptest.NewLogger(t))

	for i := 0; i < 5; i++ {
		require.Equal(t, Apology, c.Generate(context.Background(), nil, "x"))
	}
	// breaker opens after three consecutive failures
	require.EqualValues(t, 3, srv.calls.Load())
}

func TestGenerate_EmptyPromptRejected(t *testing.T) {
	srv := &fakeServer{}
	c := newClient(startServer(t, srv), time.Second, nil)
	require.Equal(t, Apology, c.Generate(context.Background(), nil, ""))
	require.EqualValues(t, 0, srv.calls.Load())
}

func TestSummarize(t *testing.T) {
	srv := &fakeServer{}
	c := newClient(startServer(t, srv), time.Second, nil)

	require.Nil(t, c.Summarize(context.Background(), nil))
	require.EqualValues(t, 0, srv.calls.Load())

	out := c.Summarize(context.Background(), []model.Message{
		{SenderID: "ann", Text: "lunch?"},
		{SenderID: "bob", Text: "noon it is!"},
		{SenderID: "ann", Text: "todo: book a table"},
	})
	require.NotNil(t, out)
	require.Equal(t, "3 messages between ann, bob. Last: todo: book a table", out.Summary)
	require.Equal(t, []string{"noon it is!"}, out.Decisions)
	require.Equal(t, []string{"book a table"}, out.ActionItems)
}

func TestSummarize_Unreachable(t *testing.T) {
	c := newClient(startServer(t, brokenSummary{}), time.Second, nil)
	require.Nil(t, c.Summarize(context.Background(), []model.Message{{SenderID: "a", Text: "x"}}))
}

type brokenSummary struct{ Rules }

func (brokenSummary) Summarize(context.Context, []convert.Turn) (model.Summary, error) {
	return model.Summary{}, errors.New("down")
}

func TestRecoverUnary_Panic(t *testing.T) {
	c := newClient(startServer(t, panicky{}), time.Second, nil)
	require.Equal(t, Apology, c.Generate(context.Background(), nil, "boom"))
}

type panicky struct{ Rules }

func (panicky) Generate(context.Context, string, []convert.Turn) (string, error) { panic("oh no") }

func TestDial_Guards(t *testing.T) {
	_, err := Dial(Options{}, nil)
	require.ErrorIs(t, err, errs.ErrNotConfigured)

	_, err = Dial(Options{Addr: "localhost:1", CACert: "/does/not/exist.pem"}, nil)
	require.Error(t, err)

	c, err := Dial(Options{Addr: "localhost:1", Token: func() string { return "t" }}, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestBearerCreds(t *testing.T) {
	tok := ""
	b := bearerCreds{token: func() string { return tok }}
	md, err := b.GetRequestMetadata(context.Background())
	require.NoError(t, err)
	require.Empty(t, md)

	tok = "abc"
	md, _ = b.GetRequestMetadata(context.Background())
	require.Equal(t, "Bearer abc", md["authorization"])
	require.True(t, b.RequireTransportSecurity())
}

func TestDisabled(t *testing.T) {
	var d Disabled
	require.Equal(t, Apology, d.Generate(context.Background(), nil, "x"))
	require.Nil(t, d.Summarize(context.Background(), []model.Message{{Text: "x"}}))
}

func TestRules(t *testing.T) {
	r := Rules{}
	out, _ := r.Generate(context.Background(), "hello", nil)
	require.Equal(t, "Hello! How can I help?", out)
	out, _ = r.Generate(context.Background(), "why?", []convert.Turn{{}, {}})
	require.Contains(t, out, "2 earlier messages")
	sum, _ := r.Summarize(context.Background(), nil)
	require.Equal(t, "No messages yet.", sum.Summary)
}
