package main

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudplay/internal/catalog"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the song catalog from the library channel",
		Long: `Find (or create) the library channel, read its full history and replace
the local catalog with one song per audio message. The catalog is left
untouched when the channel has no audio.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
}

func newSongsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "songs",
		Short: "List songs in the local catalog",
		Args:  cobra.NoArgs,
		RunE:  runSongs,
	}

	cmd.Flags().String("album", "", "only songs on this album")
	cmd.Flags().String("artist", "", "only songs by this artist")
	cmd.MarkFlagsMutuallyExclusive("album", "artist")

	return cmd
}

func newAlbumsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "albums",
		Short: "List albums with extracted metadata",
		Args:  cobra.NoArgs,
		RunE:  runAlbums,
	}
}

func newArtistsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "artists",
		Short: "List artists with extracted metadata",
		Args:  cobra.NoArgs,
		RunE:  runArtists,
	}
}

func openCatalog(ctx context.Context, cc *CLIContext) (*catalog.Store, error) {
	return catalog.Open(ctx, cc.Cfg.Catalog.Database, cc.Logger)
}

func runSync(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	gs, err := connectGateway(ctx, cc)
	if err != nil {
		return err
	}
	defer gs.Close()

	if err := gs.RequireReady(ctx, cc.Cfg.Backend.ConnectTimeout); err != nil {
		return err
	}

	store, err := openCatalog(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	res, err := gs.Syncer(store, &cc.Cfg.Catalog).Sync(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, res)
	}

	if res.Replaced {
		cc.Statusf("Synced %d songs from %d messages.\n", res.Songs, res.Messages)
	} else {
		cc.Statusf("No audio found in %d messages; catalog unchanged.\n", res.Messages)
	}

	return nil
}

func runSongs(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store, err := openCatalog(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	album, _ := cmd.Flags().GetString("album")
	artist, _ := cmd.Flags().GetString("artist")

	var songs []catalog.Song

	switch {
	case album != "":
		songs, err = store.SongsByAlbum(ctx, album)
	case artist != "":
		songs, err = store.SongsByArtist(ctx, artist)
	default:
		songs, err = store.Songs(ctx)
	}

	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, songs)
	}

	if len(songs) == 0 {
		cc.Statusf("No songs. Run 'cloudplay sync' first.\n")
		return nil
	}

	printSongs(os.Stdout, songs)

	return nil
}

func printSongs(w io.Writer, songs []catalog.Song) {
	rows := make([][]string, 0, len(songs))
	for i := range songs {
		s := &songs[i]
		rows = append(rows, []string{
			strconv.FormatInt(int64(s.FileID), 10),
			s.Title,
			s.Artist,
			s.Album,
			formatDuration(int64(s.Duration)),
			formatSize(s.Size),
			formatTime(time.Unix(s.DateAdded, 0)),
		})
	}

	printTable(w, []string{"FILE", "TITLE", "ARTIST", "ALBUM", "LENGTH", "SIZE", "ADDED"}, rows)
}

func runAlbums(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store, err := openCatalog(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	albums, err := store.Albums(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, albums)
	}

	rows := make([][]string, 0, len(albums))
	for _, a := range albums {
		rows = append(rows, []string{a.Name, a.Artist, strconv.Itoa(a.SongCount)})
	}

	printTable(os.Stdout, []string{"ALBUM", "ARTIST", "SONGS"}, rows)

	return nil
}

func runArtists(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	store, err := openCatalog(ctx, cc)
	if err != nil {
		return err
	}
	defer store.Close()

	artists, err := store.Artists(ctx)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(os.Stdout, artists)
	}

	rows := make([][]string, 0, len(artists))
	for _, a := range artists {
		rows = append(rows, []string{a.Name, strconv.Itoa(a.SongCount), strconv.Itoa(a.AlbumCount)})
	}

	printTable(os.Stdout, []string{"ARTIST", "SONGS", "ALBUMS"}, rows)

	return nil
}
