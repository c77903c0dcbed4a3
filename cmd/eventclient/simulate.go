package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/PYPE-AI-MAIN/whispey/internal/models"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/bugreport"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/export"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/session"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/stt/mock"
	"github.com/PYPE-AI-MAIN/whispey/internal/service/voice"
)

// dryRunExporter reports how a call log would be uploaded without sending it.
type dryRunExporter struct {
	planner *export.Exporter
	out     io.Writer
}

func (d *dryRunExporter) Export(_ context.Context, log *models.CallLog, _ string) export.Result {
	export.Normalize(log)
	body, err := json.Marshal(log)
	if err != nil {
		return export.Result{Error: err.Error()}
	}
	plan := d.planner.PlanFor(body)
	method := export.MethodSingle
	if plan.TwoPhase {
		method = export.MethodTwoPhase
	}
	fmt.Fprintf(d.out, "dry run: %d bytes, %d on the wire, %s upload\n", plan.OriginalSize, plan.Size, method)
	return export.Result{Success: true, UploadMethod: method}
}

func newSimulateCmd() *cobra.Command {
	var scriptPath string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a scripted recognizer through the session pipeline in-process",
		Long: `Feed scripted recognizer output through the voice handler and the
bug-report interceptor without a server, then print the transcript and a dry
run of the export. The default script files one bug report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			script := mock.BugReportScript
			if scriptPath != "" {
				data, err := os.ReadFile(scriptPath)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &script); err != nil {
					return fmt.Errorf("parse script: %w", err)
				}
			}

			logger := zerolog.Nop()
			if verbose {
				logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).With().Timestamp().Logger()
			}
			out := cmd.OutOrStdout()
			ctx := cmd.Context()

			exporter := &dryRunExporter{planner: export.New(export.Config{APIKey: "dry-run"}, logger), out: out}
			manager := session.NewManager(session.Config{BugReport: bugreport.DefaultConfig()}, exporter, logger)
			speaker := voice.SpeakerFunc(func(_ context.Context, s models.SpeechOutput) error {
				fmt.Fprintf(out, "AGENT (interjects): %s\n", s.Text)
				return nil
			})

			const sessionID = "simulated"
			handler := voice.NewHandler(sessionID, mock.New(script), manager, speaker, logger)
			if err := handler.Start(ctx); err != nil {
				return err
			}
			for i := 0; i < mock.Steps(script); i++ {
				if err := handler.SendAudio(ctx, []byte{0}); err != nil {
					return err
				}
			}
			if err := handler.Close(); err != nil {
				return err
			}

			view, err := manager.Snapshot(sessionID)
			if err != nil {
				return err
			}
			fmt.Fprint(out, view.Formatted)
			stats := handler.Stats()
			fmt.Fprintf(out, "\nutterances=%d passed=%d suppressed=%d dropped=%d bug_reports=%d\n",
				stats.Utterances, stats.Passed, stats.Suppressed, stats.Dropped, len(view.BugReports))

			_, err = manager.Export(ctx, sessionID, session.ExportOptions{})
			return err
		},
	}

	cmd.Flags().StringVar(&scriptPath, "script", "", "JSON file with a list of utterances")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Log pipeline activity to stderr")
	return cmd
}
