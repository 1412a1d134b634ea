// File: cmd/dump.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/saz-cli/internal/config"
	"github.com/xkilldash9x/saz-cli/internal/observability"
	"github.com/xkilldash9x/saz-cli/pkg/saz"
)

// sessionRecord is one line of dump output.
type sessionRecord struct {
	RunID  string `json:"run_id"`
	Prefix string `json:"prefix"`

	SID                string     `json:"sid,omitempty"`
	ClientBeginRequest *time.Time `json:"client_begin_request,omitempty"`

	Method           string `json:"method,omitempty"`
	Target           string `json:"target,omitempty"`
	RequestHeaders   int    `json:"request_headers,omitempty"`
	RequestFraming   string `json:"request_framing,omitempty"`
	RequestBodyBytes int64  `json:"request_body_bytes"`

	Status            int    `json:"status,omitempty"`
	Reason            string `json:"reason,omitempty"`
	ResponseHeaders   int    `json:"response_headers,omitempty"`
	ResponseFraming   string `json:"response_framing,omitempty"`
	ResponseEncoding  string `json:"response_encoding,omitempty"`
	ResponseBodyBytes int64  `json:"response_body_bytes"`

	Errors []string `json:"errors,omitempty"`
}

func newDumpCmd() *cobra.Command {
	var outputPath string

	dumpCmd := &cobra.Command{
		Use:   "dump <archive>",
		Short: "Write a JSON line per session",
		Long: `Reads every session of the archive concurrently and writes one JSON object per
session, in archive order. Parse failures are recorded in the session's "errors" field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputPath != "" {
				path, err := homedir.Expand(outputPath)
				if err != nil {
					return fmt.Errorf("invalid output path %q: %w", outputPath, err)
				}
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				out = f
			}
			return runDump(cmd.Context(), out, observability.GetLogger(), cfg, args[0])
		},
	}

	dumpCmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file path. If unset, records are printed to stdout.")
	dumpCmd.Flags().Bool("decompress", true, "count decoded body bytes for gzip, deflate and br bodies")
	dumpCmd.Flags().Int("concurrency", 0, "number of sessions read in parallel")
	return dumpCmd
}

func runDump(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.Interface, path string) error {
	archive, err := openArchive(path, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	runID := uuid.NewString()
	sessions := archive.Sessions()
	records := make([]sessionRecord, len(sessions))
	decompress := cfg.Archive().Decompress

	logger.Info("Dumping archive",
		zap.String("run_id", runID),
		zap.String("path", path),
		zap.Int("sessions", len(sessions)),
		zap.Int("concurrency", cfg.Archive().Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Archive().Concurrency)
	for i, s := range sessions {
		g.Go(func() error {
			rec, err := collect(gctx, s, decompress)
			rec.RunID = runID
			records[i] = rec
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	logger.Info("Dump complete", zap.String("run_id", runID))
	return nil
}

// collect reads one session. Only cancellation is returned as an error; parse
// failures are recorded and the other sessions carry on.
func collect(ctx context.Context, s *saz.Session, decompress bool) (sessionRecord, error) {
	rec := sessionRecord{Prefix: s.Prefix()}
	note := func(what string, err error) error {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		rec.Errors = append(rec.Errors, fmt.Sprintf("%s: %v", what, err))
		return nil
	}

	if s.HasRequest() {
		req, err := s.ReadRequest(ctx, decompress)
		if err == nil {
			rec.Method, rec.Target = req.Method, req.Target
			rec.RequestHeaders = len(req.Header)
			rec.RequestFraming = req.Framing.String()
			rec.RequestBodyBytes, err = countBody(req.Body)
		}
		if err != nil {
			if err := note("request", err); err != nil {
				return rec, err
			}
		}
	}

	if s.HasResponse() {
		resp, err := s.ReadResponse(ctx, decompress)
		if err == nil {
			rec.Status, rec.Reason = resp.StatusCode, resp.Reason
			rec.ResponseHeaders = len(resp.Header)
			rec.ResponseFraming = resp.Framing.String()
			if resp.Decoded {
				rec.ResponseEncoding = resp.ContentEncoding
			}
			rec.ResponseBodyBytes, err = countBody(resp.Body)
		}
		if err != nil {
			if err := note("response", err); err != nil {
				return rec, err
			}
		}
	}

	if s.HasMetadata() {
		m, err := s.ReadMetadata(ctx)
		if err == nil {
			rec.SID = m.SID
			if m.Timers != nil {
				rec.ClientBeginRequest = m.Timers.ClientBeginRequest
			}
		} else if err := note("metadata", err); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

func countBody(body io.ReadCloser) (int64, error) {
	defer body.Close()
	return io.Copy(io.Discard, body)
}
