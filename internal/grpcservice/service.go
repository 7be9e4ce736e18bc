// Package grpcservice implements the StashService control API served on the
// IPC socket: triggers, prompt answers, history browsing and the event
// stream.
package grpcservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/popstash/internal/capture"
	"go.klb.dev/popstash/internal/history"
	"go.klb.dev/popstash/internal/hub"
	"go.klb.dev/popstash/internal/resolve"
)

// Capturer is the capture orchestrator as seen by the API.
type Capturer interface {
	Trigger(ctx context.Context, kind capture.Kind) (capture.Prompt, error)
	Confirm(ctx context.Context, promptID, text string) error
	Cancel(ctx context.Context, promptID string) error
	Pending() (capture.Prompt, bool)
	CopyItem(id string) error
	State() capture.State
}

// History is the history store as seen by the API.
type History interface {
	Query(substr string) []history.Item
	Get(id string) (history.Item, bool)
	TogglePin(id string) (bool, error)
	DeleteMany(ids []string) int
	Clear()
	Len() int
	LastAddedID() string
}

// Events is where Watch streams register.
type Events interface {
	Register(hub.Subscriber)
	Unregister(hub.Subscriber)
}

// Info is the static part of Status.
type Info struct {
	Version     string
	Clipboard   string
	Desktop     string
	HistoryFile string
	Encrypted   bool
	StartedAt   time.Time
}

// Config wires a Service. Token may be empty to disable auth.
type Config struct {
	Capture Capturer
	History History
	Events  Events
	Info    Info
	Token   string
}

// Service implements StashServer.
type Service struct {
	cfg      Config
	watchSeq atomic.Uint64
	watchers atomic.Int64
}

var _ StashServer = (*Service)(nil)

// New returns a Service for cfg.
func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// Trigger runs a capture. A true request value selects the secondary trigger.
func (s *Service) Trigger(ctx context.Context, req *wrapperspb.BoolValue) (*structpb.Struct, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	kind := capture.Primary
	if req.GetValue() {
		kind = capture.Secondary
	}
	p, err := s.cfg.Capture.Trigger(ctx, kind)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(promptOf(p))
}

// Confirm answers a prompt. The request carries "promptId" and an optional
// "text"; without text the prompt's own text is confirmed.
func (s *Service) Confirm(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	fields := req.GetFields()
	id := fields["promptId"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "promptId is required")
	}
	text, ok := fields["text"]
	var answer string
	if ok {
		answer = text.GetStringValue()
	} else if p, pending := s.cfg.Capture.Pending(); pending && p.ID == id {
		answer = p.Text
	}
	if err := s.cfg.Capture.Confirm(ctx, id, answer); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Cancel dismisses a prompt without writing the clipboard.
func (s *Service) Cancel(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.cfg.Capture.Cancel(ctx, req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Pending returns the prompt awaiting an answer, or NotFound.
func (s *Service) Pending(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	p, ok := s.cfg.Capture.Pending()
	if !ok {
		return nil, status.Error(codes.NotFound, "no pending prompt")
	}
	return encode(promptOf(p))
}

// List returns history items in display order, filtered by the request's
// case-insensitive substring.
func (s *Service) List(ctx context.Context, req *wrapperspb.StringValue) (*structpb.ListValue, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	items := s.cfg.History.Query(req.GetValue())
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = itemOf(it)
	}
	l, err := toList(out)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return l, nil
}

// TogglePin flips an item's pin and returns the new state.
func (s *Service) TogglePin(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BoolValue, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	pinned, err := s.cfg.History.TogglePin(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(pinned), nil
}

// Delete removes the listed ids and returns how many existed.
func (s *Service) Delete(ctx context.Context, req *structpb.ListValue) (*wrapperspb.Int64Value, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(req.GetValues()))
	for _, v := range req.GetValues() {
		if id := v.GetStringValue(); id != "" {
			ids = append(ids, id)
		}
	}
	n := s.cfg.History.DeleteMany(ids)
	if n == 0 && len(ids) > 0 {
		return nil, toStatus(history.ErrNotFound)
	}
	return wrapperspb.Int64(int64(n)), nil
}

// Clear empties the history.
func (s *Service) Clear(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	s.cfg.History.Clear()
	return &emptypb.Empty{}, nil
}

// Copy puts a history item back on the system clipboard.
func (s *Service) Copy(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.cfg.Capture.CopyItem(req.GetValue()); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Content returns an item's raw payload: PNG bytes for images, UTF-8 for text.
func (s *Service) Content(ctx context.Context, req *wrapperspb.StringValue) (*httpbody.HttpBody, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	it, ok := s.cfg.History.Get(req.GetValue())
	if !ok {
		return nil, toStatus(history.ErrNotFound)
	}
	if it.Content.IsImage() {
		return &httpbody.HttpBody{ContentType: "image/png", Data: it.Content.ImageData()}, nil
	}
	return &httpbody.HttpBody{ContentType: "text/plain; charset=utf-8", Data: []byte(it.Content.Text())}, nil
}

// Status reports daemon state.
func (s *Service) Status(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	info := s.cfg.Info
	st := Status{
		Version:     info.Version,
		Clipboard:   info.Clipboard,
		Desktop:     info.Desktop,
		HistoryFile: info.HistoryFile,
		Encrypted:   info.Encrypted,
		Items:       s.cfg.History.Len(),
		LastAddedID: s.cfg.History.LastAddedID(),
		State:       s.cfg.Capture.State().String(),
		Watchers:    int(s.watchers.Load()),
		StartedAt:   info.StartedAt,
	}
	if p, ok := s.cfg.Capture.Pending(); ok {
		st.PendingID = p.ID
	}
	return encode(st)
}

// Watch streams hub events until the client goes away. The request lists
// the event kinds wanted; empty means all.
func (s *Service) Watch(req *structpb.ListValue, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	if err := s.auth(ctx); err != nil {
		return err
	}

	var kinds []hub.Kind
	for _, v := range req.GetValues() {
		kinds = append(kinds, hub.Kind(v.GetStringValue()))
	}
	id := fmt.Sprintf("%s/watch/%d", addrFromCtx(ctx), s.watchSeq.Add(1))
	sub := hub.NewChanSubscriber(id, 32, kinds...)

	s.cfg.Events.Register(sub)
	s.watchers.Add(1)
	defer func() {
		s.cfg.Events.Unregister(sub)
		s.watchers.Add(-1)
	}()

	slog.Info("watch started", "watcher", id, "kinds", kinds)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("watch ended", "watcher", id)
			return nil
		case ev := <-sub.C():
			msg, err := toStruct(ev)
			if err != nil {
				slog.Warn("watch: encode event", "err", err)
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// auth validates the bearer token in ctx metadata. Skipped when no token is
// configured.
func (s *Service) auth(ctx context.Context) error {
	if s.cfg.Token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	tok := strings.TrimPrefix(vals[0], "Bearer ")
	if tok != s.cfg.Token {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	st, err := toStruct(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, history.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, capture.ErrBusy):
		code = codes.Unavailable
	case errors.Is(err, capture.ErrNoPrompt):
		code = codes.FailedPrecondition
	case errors.Is(err, resolve.ErrPermissionDenied):
		code = codes.PermissionDenied
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if a := p.Addr.String(); a != "" {
			return a
		}
	}
	return "local"
}
