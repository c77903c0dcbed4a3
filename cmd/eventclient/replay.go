package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	grpcapi "github.com/PYPE-AI-MAIN/whispey/internal/api/grpc"
)

func newReplayCmd(opts *clientOptions) *cobra.Command {
	var sessionID string
	var doExport bool
	var apiKey string

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Stream a recorded event log to the service",
		Long: `Stream a JSONL event log (one envelope per line) over a single
StreamEvents call and print the acknowledgement.

Examples:
  eventclient replay call.jsonl
  eventclient replay call.jsonl --session test-1 --export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			events, err := readEvents(f, sessionID)
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			client, ctx, cleanup, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			stream, err := client.StreamEvents(ctx)
			if err != nil {
				return fmt.Errorf("open stream: %w", err)
			}
			for i, env := range events {
				msg, err := grpcapi.ToStruct(env)
				if err != nil {
					return fmt.Errorf("event %d: %w", i, err)
				}
				if err := stream.Send(msg); err != nil {
					return fmt.Errorf("send event %d: %w", i, err)
				}
			}
			out, err := stream.CloseAndRecv()
			if err != nil {
				return fmt.Errorf("receive ack: %w", err)
			}

			var ack grpcapi.StreamAck
			if err := grpcapi.FromStruct(out, &ack); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d failed=%d sessions=%v\n", ack.Processed, ack.Failed, ack.Sessions)
			for i, r := range ack.Results {
				if r.Error != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "  event %d (%s): %s\n", i, r.Type, r.Error)
				}
				for _, say := range r.Say {
					fmt.Fprintf(cmd.OutOrStdout(), "  event %d says: %s\n", i, say.Text)
				}
			}

			if !doExport {
				return nil
			}
			for _, id := range ack.Sessions {
				req, err := grpcapi.ToStruct(grpcapi.ExportRequest{SessionID: id, APIKey: apiKey})
				if err != nil {
					return err
				}
				res, err := client.Export(ctx, req)
				if err != nil {
					return fmt.Errorf("export %s: %w", id, err)
				}
				data, _ := json.Marshal(res.AsMap())
				fmt.Fprintf(cmd.OutOrStdout(), "export %s: %s\n", id, data)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Override the session_id of every event")
	cmd.Flags().BoolVar(&doExport, "export", false, "Export every streamed session afterwards")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the export (defaults to the server's)")
	return cmd
}
