package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudplay/internal/stream"
)

// copyBufferSize matches typical decoder read sizes.
const copyBufferSize = 64 * 1024

var errTerminalOutput = errors.New("refusing to write audio to a terminal (use --output or --force)")

func newPlayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <uri|file-id>",
		Short: "Stream a file to stdout or --output",
		Long: `Read a media URI through the stream dispatcher and write the bytes out.

remote-file://<id> (or a bare numeric id) is read progressively while the
backend downloads it. file:// URIs, plain paths and http(s) URLs are read
directly.`,
		Args: cobra.ExactArgs(1),
		RunE: runPlay,
	}

	cmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	cmd.Flags().Int64("offset", 0, "start reading at this byte")
	cmd.Flags().Int64("length", stream.LengthUnset, "read at most this many bytes (-1 for all)")
	cmd.Flags().Bool("force", false, "write to stdout even when it is a terminal")

	return cmd
}

func runPlay(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	u, err := parsePlayURI(args[0])
	if err != nil {
		return err
	}

	offset, _ := cmd.Flags().GetInt64("offset")
	length, _ := cmd.Flags().GetInt64("length")
	outPath, _ := cmd.Flags().GetString("output")
	force, _ := cmd.Flags().GetBool("force")

	if offset < 0 {
		return fmt.Errorf("invalid --offset %d: must be non-negative", offset)
	}

	out, closeOut, err := openPlayOutput(outPath, force)
	if err != nil {
		return err
	}
	defer closeOut()

	factory := stream.Factory{
		HTTPClient: defaultHTTPClient(),
		Logger:     cc.Logger,
		Listeners:  []stream.TransferListener{stream.MetricsListener{}},
	}

	if u.Scheme == stream.SchemeRemoteFile {
		gs, err := connectGateway(ctx, cc)
		if err != nil {
			return err
		}
		defer gs.Close()

		if err := gs.RequireReady(ctx, cc.Cfg.Backend.ConnectTimeout); err != nil {
			return err
		}

		factory = gs.StreamFactory(&cc.Cfg.Stream)
	}

	n, err := copyStream(ctx, factory.New(), stream.DataSpec{URI: u, Position: offset, Length: length}, out, cc.Logger)
	if err != nil {
		return err
	}

	cc.Statusf("Wrote %s.\n", formatSize(n))

	return nil
}

// parsePlayURI accepts a bare positive integer as a remote file id.
func parsePlayURI(arg string) (*url.URL, error) {
	if id, err := strconv.ParseInt(arg, 10, 32); err == nil {
		if id <= 0 {
			return nil, fmt.Errorf("invalid file id %q: must be positive", arg)
		}

		return stream.RemoteFileURI(int32(id)), nil
	}

	u, err := url.Parse(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid uri %q: %w", arg, err)
	}

	return u, nil
}

// openPlayOutput returns the destination and its cleanup.
func openPlayOutput(path string, force bool) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		if !force && isatty.IsTerminal(os.Stdout.Fd()) {
			return nil, nil, errTerminalOutput
		}

		return os.Stdout, func() {}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output: %w", err)
	}

	return f, func() { f.Close() }, nil
}

// copyStream opens src at spec and copies everything it serves into w. A
// cancelled ctx closes src, which interrupts a read waiting on a growing
// file.
func copyStream(ctx context.Context, src stream.Source, spec stream.DataSpec, w io.Writer, logger *slog.Logger) (int64, error) {
	length, err := src.Open(ctx, spec)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", spec.URI, err)
	}

	logger.Debug("stream opened", slog.String("uri", spec.URI.String()), slog.Int64("length", length))

	stop := context.AfterFunc(ctx, func() { src.Close() })
	defer stop()
	defer src.Close()

	n, err := io.CopyBuffer(w, src, make([]byte, copyBufferSize))
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}

		return n, fmt.Errorf("reading %s: %w", spec.URI, err)
	}

	return n, nil
}
