package grpcservice

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/genproto/googleapis/api/httpbody"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"go.klb.dev/popstash/internal/hub"
)

// Client calls StashService over a client connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient returns a Client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.cc.Invoke(ctx, FullMethod(method), in, out)
}

// Trigger runs a capture and returns the prompt shown.
func (c *Client) Trigger(ctx context.Context, secondary bool) (Prompt, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Trigger", wrapperspb.Bool(secondary), out); err != nil {
		return Prompt{}, err
	}
	var p Prompt
	if err := decode(out, &p); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// Confirm answers a prompt. A nil text confirms the prompt's own text.
func (c *Client) Confirm(ctx context.Context, promptID string, text *string) error {
	fields := map[string]any{"promptId": promptID}
	if text != nil {
		fields["text"] = *text
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return err
	}
	return c.invoke(ctx, "Confirm", req, new(emptypb.Empty))
}

// Cancel dismisses a prompt.
func (c *Client) Cancel(ctx context.Context, promptID string) error {
	return c.invoke(ctx, "Cancel", wrapperspb.String(promptID), new(emptypb.Empty))
}

// Pending returns the pending prompt. A NotFound status means none.
func (c *Client) Pending(ctx context.Context) (Prompt, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Pending", &emptypb.Empty{}, out); err != nil {
		return Prompt{}, err
	}
	var p Prompt
	if err := decode(out, &p); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// List returns history items matching query in display order.
func (c *Client) List(ctx context.Context, query string) ([]Item, error) {
	out := new(structpb.ListValue)
	if err := c.invoke(ctx, "List", wrapperspb.String(query), out); err != nil {
		return nil, err
	}
	var items []Item
	if err := decode(out, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// TogglePin flips an item's pin and returns the new state.
func (c *Client) TogglePin(ctx context.Context, id string) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.invoke(ctx, "TogglePin", wrapperspb.String(id), out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

// Delete removes ids and returns how many existed.
func (c *Client) Delete(ctx context.Context, ids ...string) (int, error) {
	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	req, err := structpb.NewList(vals)
	if err != nil {
		return 0, err
	}
	out := new(wrapperspb.Int64Value)
	if err := c.invoke(ctx, "Delete", req, out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}

// Clear empties the history.
func (c *Client) Clear(ctx context.Context) error {
	return c.invoke(ctx, "Clear", &emptypb.Empty{}, new(emptypb.Empty))
}

// Copy writes a history item to the system clipboard.
func (c *Client) Copy(ctx context.Context, id string) error {
	return c.invoke(ctx, "Copy", wrapperspb.String(id), new(emptypb.Empty))
}

// Content returns an item's raw payload and its content type.
func (c *Client) Content(ctx context.Context, id string) ([]byte, string, error) {
	out := new(httpbody.HttpBody)
	if err := c.invoke(ctx, "Content", wrapperspb.String(id), out); err != nil {
		return nil, "", err
	}
	return out.GetData(), out.GetContentType(), nil
}

// Status reports daemon state.
func (c *Client) Status(ctx context.Context) (Status, error) {
	out := new(structpb.Struct)
	if err := c.invoke(ctx, "Status", &emptypb.Empty{}, out); err != nil {
		return Status{}, err
	}
	var st Status
	if err := decode(out, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Watch calls fn for every event until ctx ends, the stream fails or fn
// returns an error. Empty kinds means all.
func (c *Client) Watch(ctx context.Context, fn func(hub.Event) error, kinds ...hub.Kind) error {
	vals := make([]any, len(kinds))
	for i, k := range kinds {
		vals[i] = string(k)
	}
	req, err := structpb.NewList(vals)
	if err != nil {
		return err
	}

	desc := &ServiceDesc.Streams[0]
	cs, err := c.cc.NewStream(ctx, desc, FullMethod(desc.StreamName))
	if err != nil {
		return err
	}
	stream := &grpc.GenericClientStream[structpb.ListValue, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("watch: %w", err)
		}
		var ev hub.Event
		if err := decode(msg, &ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
