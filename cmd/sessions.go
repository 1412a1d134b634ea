// File: cmd/sessions.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/saz-cli/internal/config"
	"github.com/xkilldash9x/saz-cli/internal/observability"
	"github.com/xkilldash9x/saz-cli/pkg/saz"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <archive>",
		Short: "List the sessions in an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runSessions(cmd.Context(), cmd.OutOrStdout(), observability.GetLogger(), cfg, args[0])
		},
	}
}

// runSessions prints one line per session. A session that fails to parse is
// reported inline; the others are still listed.
func runSessions(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.Interface, path string) error {
	archive, err := openArchive(path, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PREFIX\tREQUEST\tSTATUS\tENTRIES")
	for _, s := range archive.Sessions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		request, status := summarize(ctx, logger, s)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Prefix(), request, status, entryKinds(s))
	}
	return tw.Flush()
}

// summarize returns the request line and response status of s, or a short error marker.
func summarize(ctx context.Context, logger *zap.Logger, s *saz.Session) (request, status string) {
	request, status = "-", "-"
	if s.HasRequest() {
		req, err := s.ReadRequest(ctx, false)
		if err != nil {
			logger.Warn("Failed to parse request", zap.String("prefix", s.Prefix()), zap.Error(err))
			request = "<error>"
		} else {
			request = req.Method + " " + req.Target
			_ = req.Body.Close()
		}
	}
	if s.HasResponse() {
		resp, err := s.ReadResponse(ctx, false)
		if err != nil {
			logger.Warn("Failed to parse response", zap.String("prefix", s.Prefix()), zap.Error(err))
			status = "<error>"
		} else {
			status = fmt.Sprint(resp.StatusCode)
			_ = resp.Body.Close()
		}
	}
	return request, status
}

func entryKinds(s *saz.Session) string {
	var kinds []string
	for _, k := range []struct {
		name    string
		present bool
	}{
		{"c", s.HasRequest()},
		{"s", s.HasResponse()},
		{"m", s.HasMetadata()},
		{"w", s.HasWebSocket()},
		{"g", s.HasGRPC()},
	} {
		if k.present {
			kinds = append(kinds, k.name)
		}
	}
	return strings.Join(kinds, ",")
}
