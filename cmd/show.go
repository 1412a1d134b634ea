// File: cmd/show.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/saz-cli/internal/config"
	"github.com/xkilldash9x/saz-cli/pkg/saz"
)

func newShowCmd() *cobra.Command {
	var showBody bool

	showCmd := &cobra.Command{
		Use:   "show <archive> <prefix>",
		Short: "Print one session's request, response and metadata",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runShow(cmd.Context(), cmd.OutOrStdout(), cfg, args[0], args[1], showBody)
		},
	}

	showCmd.Flags().BoolVar(&showBody, "body", false, "also print message bodies")
	showCmd.Flags().Bool("decompress", true, "decode gzip, deflate and br bodies")
	return showCmd
}

func runShow(ctx context.Context, out io.Writer, cfg config.Interface, path, prefix string, showBody bool) error {
	archive, err := openArchive(path, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	s, ok := archive.Session(prefix)
	if !ok {
		return fmt.Errorf("session %q not found in %s", prefix, path)
	}
	decompress := cfg.Archive().Decompress

	if s.HasRequest() {
		req, err := s.ReadRequest(ctx, decompress)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "== Request ==")
		if err := printMessage(out, req.StartLine(), req.Header, req.Body, showBody); err != nil {
			return err
		}
	}

	if s.HasResponse() {
		resp, err := s.ReadResponse(ctx, decompress)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "== Response ==")
		if err := printMessage(out, resp.StartLine(), resp.Header, resp.Body, showBody); err != nil {
			return err
		}
		fmt.Fprintf(out, "(framing: %s", resp.Framing)
		if resp.Decoded {
			fmt.Fprintf(out, ", decoded: %s", resp.ContentEncoding)
		}
		fmt.Fprintln(out, ")")
	}

	if s.HasMetadata() {
		m, err := s.ReadMetadata(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "== Metadata ==")
		printMetadata(out, m)
	}
	return nil
}

// printMessage writes the head of a message and, optionally, its body. The body is
// always closed.
func printMessage(out io.Writer, startLine string, h saz.Header, body io.ReadCloser, showBody bool) error {
	defer body.Close()

	fmt.Fprintln(out, startLine)
	for _, f := range h {
		fmt.Fprintf(out, "%s: %s\n", f.Name, f.Value)
	}
	fmt.Fprintln(out)
	if !showBody {
		return nil
	}
	if _, err := io.Copy(out, body); err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}

func printMetadata(out io.Writer, m *saz.Metadata) {
	fmt.Fprintf(out, "SID: %s\n", m.SID)
	fmt.Fprintf(out, "BitFlags: %#x\n", m.BitFlags)
	if t := m.Timers; t != nil {
		stamp := func(name string, v *time.Time) {
			if v != nil {
				fmt.Fprintf(out, "%s: %s\n", name, v.Format(time.RFC3339Nano))
			}
		}
		dur := func(name string, v *time.Duration) {
			if v != nil {
				fmt.Fprintf(out, "%s: %s\n", name, *v)
			}
		}
		stamp("ClientBeginRequest", t.ClientBeginRequest)
		stamp("ClientDoneResponse", t.ClientDoneResponse)
		dur("DNSTime", t.DNSTime)
		dur("TCPConnectTime", t.TCPConnectTime)
		dur("HTTPSHandshakeTime", t.HTTPSHandshakeTime)
		dur("GatewayTime", t.GatewayTime)
		if t.ClientBeginRequest != nil && t.ClientDoneResponse != nil {
			fmt.Fprintf(out, "Elapsed: %s\n", t.ClientDoneResponse.Sub(*t.ClientBeginRequest))
		}
	}
	if m.Flags != nil {
		for _, f := range m.Flags.Entries {
			fmt.Fprintf(out, "flag %s=%s\n", f.Name, f.Value)
		}
	}
}
