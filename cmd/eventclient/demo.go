package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	grpcapi "github.com/PYPE-AI-MAIN/whispey/internal/api/grpc"
	"github.com/PYPE-AI-MAIN/whispey/internal/models"
)

func newDemoCmd(opts *clientOptions) *cobra.Command {
	var sessionID string
	var doExport bool
	var apiKey string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Play a built-in call, one event at a time, acting as the host pipeline",
		Long: `Send a short scripted support call with SendEvent. User speech goes
through user_transcript first and only becomes a conversation item when the
service does not suppress it; speech the service asks for is printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			client, ctx, cleanup, err := opts.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			send := func(env models.Envelope) (models.EventResult, error) {
				var res models.EventResult
				msg, err := grpcapi.ToStruct(env)
				if err != nil {
					return res, err
				}
				reply, err := client.SendEvent(ctx, msg)
				if err != nil {
					return res, fmt.Errorf("%s: %w", env.Type, err)
				}
				return res, grpcapi.FromStruct(reply, &res)
			}

			for _, env := range demoCall(sessionID, float64(time.Now().Unix())) {
				res, err := send(env)
				if err != nil {
					return err
				}
				for _, say := range res.Say {
					fmt.Fprintf(out, "AGENT (interjects): %s\n", say.Text)
				}
				switch {
				case env.Type == models.EventConversationItem:
					fmt.Fprintf(out, "AGENT: %s\n", env.Text)
				case env.Type != models.EventUserTranscript:
				case res.Suppressed:
					fmt.Fprintf(out, "USER (bug report): %s\n", env.Text)
				default:
					fmt.Fprintf(out, "USER: %s\n", env.Text)
					item := models.Envelope{
						SessionID: sessionID,
						Type:      models.EventConversationItem,
						Timestamp: env.Timestamp,
						Role:      models.RoleUser,
						Text:      env.Text,
					}
					if _, err := send(item); err != nil {
						return err
					}
				}
			}

			if !doExport {
				fmt.Fprintf(out, "session %s left open; export with --export\n", sessionID)
				return nil
			}
			req, err := grpcapi.ToStruct(grpcapi.ExportRequest{SessionID: sessionID, APIKey: apiKey})
			if err != nil {
				return err
			}
			res, err := client.Export(ctx, req)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			data, _ := json.Marshal(res.AsMap())
			fmt.Fprintf(out, "export: %s\n", data)
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (random when empty)")
	cmd.Flags().BoolVar(&doExport, "export", false, "Export the session at the end")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for the export (defaults to the server's)")
	return cmd
}
