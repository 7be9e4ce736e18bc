// Package gateway exposes StashService as HTTP/JSON on a grpc-gateway
// ServeMux. Handlers call the service in-process; request headers are
// forwarded as incoming gRPC metadata so token auth applies unchanged.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	gwruntime "github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/popstash/internal/grpcservice"
)

// call runs one RPC. decode fills a message from the request body and
// leaves it untouched when the body is empty.
type call func(ctx context.Context, r *http.Request, params map[string]string, decode func(proto.Message) error) (proto.Message, error)

const maxBody = 1 << 20

type route struct {
	method  string
	pattern string
	rpc     string
	call    call
}

// New returns a mux routing the HTTP API to svc. When metrics is non-nil it
// is served at GET /metrics.
func New(svc grpcservice.StashServer, metrics http.Handler) (*gwruntime.ServeMux, error) {
	mux := gwruntime.NewServeMux()
	for _, rt := range routes(svc) {
		if err := mux.HandlePath(rt.method, rt.pattern, handler(mux, rt)); err != nil {
			return nil, fmt.Errorf("route %s %s: %w", rt.method, rt.pattern, err)
		}
	}
	if metrics != nil {
		err := mux.HandlePath(http.MethodGet, "/metrics", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			metrics.ServeHTTP(w, r)
		})
		if err != nil {
			return nil, fmt.Errorf("route /metrics: %w", err)
		}
	}
	return mux, nil
}

func routes(svc grpcservice.StashServer) []route {
	empty := &emptypb.Empty{}
	return []route{
		{http.MethodPost, "/v1/trigger", "Trigger", func(ctx context.Context, r *http.Request, _ map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			secondary := false
			if s := r.URL.Query().Get("secondary"); s != "" {
				b, err := strconv.ParseBool(s)
				if err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "secondary: %v", err)
				}
				secondary = b
			}
			return svc.Trigger(ctx, wrapperspb.Bool(secondary))
		}},
		{http.MethodGet, "/v1/pending", "Pending", func(ctx context.Context, _ *http.Request, _ map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.Pending(ctx, empty)
		}},
		{http.MethodPost, "/v1/prompts/{id}/confirm", "Confirm", func(ctx context.Context, r *http.Request, p map[string]string, decode func(proto.Message) error) (proto.Message, error) {
			req := &structpb.Struct{}
			if err := decode(req); err != nil {
				return nil, err
			}
			if req.Fields == nil {
				req.Fields = map[string]*structpb.Value{}
			}
			req.Fields["promptId"] = structpb.NewStringValue(p["id"])
			return svc.Confirm(ctx, req)
		}},
		{http.MethodPost, "/v1/prompts/{id}/cancel", "Cancel", func(ctx context.Context, _ *http.Request, p map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.Cancel(ctx, wrapperspb.String(p["id"]))
		}},
		{http.MethodGet, "/v1/items", "List", func(ctx context.Context, r *http.Request, _ map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.List(ctx, wrapperspb.String(r.URL.Query().Get("q")))
		}},
		{http.MethodPost, "/v1/items/{id}/pin", "TogglePin", func(ctx context.Context, _ *http.Request, p map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.TogglePin(ctx, wrapperspb.String(p["id"]))
		}},
		{http.MethodPost, "/v1/items/{id}/copy", "Copy", func(ctx context.Context, _ *http.Request, p map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.Copy(ctx, wrapperspb.String(p["id"]))
		}},
		{http.MethodGet, "/v1/items/{id}/content", "Content", func(ctx context.Context, _ *http.Request, p map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.Content(ctx, wrapperspb.String(p["id"]))
		}},
		{http.MethodDelete, "/v1/items/{id}", "Delete", func(ctx context.Context, _ *http.Request, p map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.Delete(ctx, &structpb.ListValue{Values: []*structpb.Value{structpb.NewStringValue(p["id"])}})
		}},
		{http.MethodDelete, "/v1/items", "Clear", func(ctx context.Context, _ *http.Request, _ map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.Clear(ctx, empty)
		}},
		{http.MethodGet, "/v1/status", "Status", func(ctx context.Context, _ *http.Request, _ map[string]string, _ func(proto.Message) error) (proto.Message, error) {
			return svc.Status(ctx, empty)
		}},
	}
}

func handler(mux *gwruntime.ServeMux, rt route) gwruntime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		inbound, outbound := gwruntime.MarshalerForRequest(mux, r)

		ctx, err := gwruntime.AnnotateIncomingContext(ctx, mux, r, grpcservice.FullMethod(rt.rpc), gwruntime.WithHTTPPathPattern(rt.pattern))
		if err != nil {
			gwruntime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		decode := func(m proto.Message) error {
			body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
			if err != nil {
				return status.Errorf(codes.InvalidArgument, "read body: %v", err)
			}
			if len(body) == 0 {
				return nil
			}
			if err := inbound.Unmarshal(body, m); err != nil {
				return status.Errorf(codes.InvalidArgument, "decode body: %v", err)
			}
			return nil
		}
		resp, err := rt.call(ctx, r, params, decode)
		if err != nil {
			gwruntime.HTTPError(ctx, mux, outbound, w, r, err)
			return
		}
		gwruntime.ForwardResponseMessage(ctx, mux, outbound, w, r, resp)
	}
}

// Serve runs an HTTP/1.1 server for h on ln until ctx ends.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
