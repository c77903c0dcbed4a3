package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcapi "github.com/PYPE-AI-MAIN/whispey/internal/api/grpc"
)

type clientOptions struct {
	addr    string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &clientOptions{}

	cmd := &cobra.Command{
		Use:           "eventclient",
		Short:         "Send voice-session events to the whispey telemetry service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", "localhost:50051", "gRPC address of the telemetry service")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall deadline for the command")

	cmd.AddCommand(newReplayCmd(opts))
	cmd.AddCommand(newDemoCmd(opts))
	cmd.AddCommand(newSimulateCmd())
	return cmd
}

// dial connects to the service and returns a client plus a context bounded by
// the command timeout.
func (o *clientOptions) dial(parent context.Context) (*grpcapi.Client, context.Context, func(), error) {
	conn, err := grpc.NewClient(o.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect %s: %w", o.addr, err)
	}
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	cleanup := func() {
		cancel()
		conn.Close()
	}
	return grpcapi.NewClient(conn), ctx, cleanup, nil
}
