// Package assistant talks to the text generation backend over gRPC.
//
// The wire contract is a single service with two unary methods whose
// request and response are google.protobuf.Struct values (see package convert).
package assistant

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/and161185/bazaar/internal/convert"
	"github.com/and161185/bazaar/internal/model"
)

// Service and method names.
const (
	ServiceName     = "bazaar.assistant.v1.Assistant"
	GenerateMethod  = "/" + ServiceName + "/Generate"
	SummarizeMethod = "/" + ServiceName + "/Summarize"
)

// Server is the serving side of the assistant contract.
type Server interface {
	Generate(ctx context.Context, prompt string, history []convert.Turn) (string, error)
	Summarize(ctx context.Context, history []convert.Turn) (model.Summary, error)
}

// RegisterServer exposes srv on s.
func RegisterServer(s grpc.ServiceRegistrar, srv Server) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Generate", Handler: generateHandler},
		{MethodName: "Summarize", Handler: summarizeHandler},
	},
	Metadata: "bazaar/assistant/v1/assistant.proto",
}

func unary(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor,
	method string, call func(ctx context.Context, srv Server, prompt string, h []convert.Turn) (*structpb.Struct, error)) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	h := func(ctx context.Context, req any) (any, error) {
		prompt, history, err := convert.FromProtoGenerateRequest(req.(*structpb.Struct))
		if err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "request: %v", err)
		}
		return call(ctx, srv.(Server), prompt, history)
	}
	if ic == nil {
		return h(ctx, in)
	}
	return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, h)
}

func generateHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, ic, GenerateMethod, func(ctx context.Context, s Server, p string, h []convert.Turn) (*structpb.Struct, error) {
		if p == "" {
			return nil, status.Error(codes.InvalidArgument, "empty prompt")
		}
		text, err := s.Generate(ctx, p, h)
		if err != nil {
			return nil, err
		}
		return convert.ToProtoText(text), nil
	})
}

func summarizeHandler(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, ic, SummarizeMethod, func(ctx context.Context, s Server, _ string, h []convert.Turn) (*structpb.Struct, error) {
		sum, err := s.Summarize(ctx, h)
		if err != nil {
			return nil, err
		}
		return convert.ToProtoSummary(sum), nil
	})
}
