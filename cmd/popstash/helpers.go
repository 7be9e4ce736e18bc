package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"go.klb.dev/popstash/internal/grpcservice"
	"go.klb.dev/popstash/internal/ipc"
)

var errNotRunning = errors.New(`popstash daemon is not running; start it with "popstash daemon"`)

// dialDaemon returns a client connected to the local IPC socket.
// The socket is owner-restricted by the OS; the token is only sent when one
// is configured.
func dialDaemon(v *viper.Viper) (*grpcservice.Client, func(), error) {
	if !ipc.IsRunning() {
		return nil, nil, errNotRunning
	}
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ipc.Dial(ctx)
		}),
	}
	if tok := v.GetString("token"); tok != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(&clientCreds{token: tok}))
	}
	conn, err := grpc.NewClient("passthrough:///popstash", opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	return grpcservice.NewClient(conn), func() { _ = conn.Close() }, nil
}

// withClient dials the daemon and runs fn under the --timeout deadline.
func withClient(v *viper.Viper, fn func(ctx context.Context, c *grpcservice.Client) error) error {
	c, closeFn, err := dialDaemon(v)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	if d := v.GetDuration("timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return describe(fn(ctx, c))
}

// describe turns a gRPC status into a plain error for the terminal.
func describe(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return fmt.Errorf("%s (check --token)", st.Message())
	case codes.Unavailable, codes.NotFound, codes.FailedPrecondition, codes.PermissionDenied, codes.InvalidArgument:
		return errors.New(st.Message())
	}
	return err
}

type clientCreds struct {
	token string
}

func (c *clientCreds) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.token}, nil
}

func (c *clientCreds) RequireTransportSecurity() bool { return false }

func fmtAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	age := time.Since(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	}
	return t.Local().Format("2006-01-02 15:04")
}
