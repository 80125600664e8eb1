package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	apperrors "github.com/captify/captify/internal/platform/errors"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "captify.api.v1.APIService"
	// RunMethod is the full gRPC method path of Run.
	RunMethod = "/" + ServiceName + "/Run"
)

// GRPCClient runs requests against a remote APIService.
type GRPCClient struct {
	conn grpc.ClientConnInterface
}

// NewGRPCClient returns a Runner backed by conn.
func NewGRPCClient(conn grpc.ClientConnInterface) *GRPCClient {
	return &GRPCClient{conn: conn}
}

// Run implements Runner. Status errors that carry Captify error details are
// returned as *apperrors.Error.
func (c *GRPCClient) Run(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.conn == nil {
		return Response{}, errors.New("api grpc client is not configured")
	}
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	in, err := toStruct(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RunMethod, in, out); err != nil {
		if domainErr, ok := apperrors.FromGRPCStatus(err); ok {
			return Response{}, domainErr
		}
		return Response{}, err
	}

	var resp Response
	if err := fromStruct(out, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// apiServer is the handler type of the hand-written service descriptor.
type apiServer interface {
	Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type runnerServer struct {
	runner Runner
}

func (s runnerServer) Run(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := req.Validate(); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*apiServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Run",
			Handler:    runHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "captify/api/v1/api.proto",
}

// RegisterServer exposes runner as the APIService on registrar.
func RegisterServer(registrar grpc.ServiceRegistrar, runner Runner) {
	registrar.RegisterService(&serviceDesc, runnerServer{runner: runner})
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(apiServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: RunMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(apiServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func toStatus(err error) error {
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.ToGRPCStatus()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codes.Internal, err.Error())
}

// toStruct and fromStruct carry the JSON envelopes through structpb so the
// wire format needs no generated stubs.
func toStruct(v any) (*structpb.Struct, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(encoded, out); err != nil {
		return nil, err
	}
	return out, nil
}

func fromStruct(in *structpb.Struct, v any) error {
	if in == nil {
		in = new(structpb.Struct)
	}
	encoded, err := protojson.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(encoded, v)
}
