package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudplay/internal/download"
)

func newFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [file-id]",
		Short: "Download a file and print its local path",
		Long: `Ask the backend to download a file and print the local path once it is known.

The file is named either by its session file id or, with --remote-id, by its
durable remote id. --immediate returns the path as soon as the download has
one, without waiting for the first status poll.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFetch,
	}

	cmd.Flags().String("remote-id", "", "durable remote file id")
	cmd.Flags().Bool("immediate", false, "return the path from the download trigger when it has one")

	return cmd
}

// fetchOutput is the JSON schema for `fetch --json`.
type fetchOutput struct {
	FileID   int32  `json:"file_id,omitempty"`
	RemoteID string `json:"remote_id,omitempty"`
	Path     string `json:"path"`
}

func runFetch(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	remoteID, _ := cmd.Flags().GetString("remote-id")
	immediate, _ := cmd.Flags().GetBool("immediate")

	var out fetchOutput

	switch {
	case remoteID != "" && len(args) > 0:
		return errors.New("give either a file id or --remote-id, not both")
	case remoteID != "":
		out.RemoteID = remoteID
	case len(args) == 1:
		id, err := parseFileID(args[0])
		if err != nil {
			return err
		}

		out.FileID = id
	default:
		return errors.New("a file id or --remote-id is required")
	}

	gs, err := connectGateway(ctx, cc)
	if err != nil {
		return err
	}
	defer gs.Close()

	if err := gs.RequireReady(ctx, cc.Cfg.Backend.ConnectTimeout); err != nil {
		return err
	}

	switch {
	case out.RemoteID != "":
		out.Path, err = gs.Orch.PathByRemoteID(ctx, out.RemoteID)
	case immediate:
		out.Path, err = gs.Orch.ImmediatePath(ctx, out.FileID)
	default:
		out.Path, err = gs.Orch.WaitForPath(ctx, out.FileID)
	}

	if err != nil {
		if errors.Is(err, download.ErrFileNotLocated) {
			return fmt.Errorf("no local path yet, try again later: %w", err)
		}

		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, out)
	}

	fmt.Println(out.Path)

	return nil
}

// parseFileID accepts a positive 32-bit session file id.
func parseFileID(s string) (int32, error) {
	id, err := strconv.ParseInt(s, 10, 32)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file id %q: must be a positive integer", s)
	}

	return int32(id), nil
}
