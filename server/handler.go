package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/chazu/jsbc/vm/dist"
)

// CompileServiceName is the fully-qualified name of the compile service.
const CompileServiceName = "jsbc.v1.CompileService"

// Procedure paths, as they appear in the URL after the host.
const (
	CompileServiceCompileProcedure      = "/jsbc.v1.CompileService/Compile"
	CompileServiceCompileBatchProcedure = "/jsbc.v1.CompileService/CompileBatch"
)

// CompileServiceHandler is implemented by the compile service.
type CompileServiceHandler interface {
	Compile(context.Context, *connect.Request[dist.CompileRequest]) (*connect.Response[dist.CompileResponse], error)
	CompileBatch(context.Context, *connect.Request[dist.BatchRequest]) (*connect.Response[dist.BatchResponse], error)
}

// NewCompileServiceHandler builds an HTTP handler for svc and returns the
// path prefix to mount it on.
func NewCompileServiceHandler(svc CompileServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	compileHandler := connect.NewUnaryHandler(
		CompileServiceCompileProcedure,
		svc.Compile,
		opts...,
	)
	batchHandler := connect.NewUnaryHandler(
		CompileServiceCompileBatchProcedure,
		svc.CompileBatch,
		opts...,
	)
	return "/" + CompileServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CompileServiceCompileProcedure:
			compileHandler.ServeHTTP(w, r)
		case CompileServiceCompileBatchProcedure:
			batchHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}

// CompileServiceClient calls a remote compile service.
type CompileServiceClient struct {
	compile *connect.Client[dist.CompileRequest, dist.CompileResponse]
	batch   *connect.Client[dist.BatchRequest, dist.BatchResponse]
}

// NewCompileServiceClient creates a client for the service at baseURL,
// e.g. http://localhost:8457.
func NewCompileServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *CompileServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &CompileServiceClient{
		compile: connect.NewClient[dist.CompileRequest, dist.CompileResponse](
			httpClient, baseURL+CompileServiceCompileProcedure, opts...),
		batch: connect.NewClient[dist.BatchRequest, dist.BatchResponse](
			httpClient, baseURL+CompileServiceCompileBatchProcedure, opts...),
	}
}

// Compile compiles one unit remotely.
func (c *CompileServiceClient) Compile(ctx context.Context, req *dist.CompileRequest) (*dist.CompileResponse, error) {
	resp, err := c.compile.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// CompileBatch compiles several units remotely.
func (c *CompileServiceClient) CompileBatch(ctx context.Context, req *dist.BatchRequest) (*dist.BatchResponse, error) {
	resp, err := c.batch.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
