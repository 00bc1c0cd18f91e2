package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const songColumns = `id, file_id, remote_file_id, title, artist, album,
	album_artist, genre, year, track_number, artwork_path,
	metadata_extracted, duration, size, date_added`

const (
	sqlAllSongs = `SELECT ` + songColumns + ` FROM songs ORDER BY date_added DESC, id DESC`

	sqlSongByID = `SELECT ` + songColumns + ` FROM songs WHERE id = ?`

	sqlUpsertSong = `INSERT OR REPLACE INTO songs (` + songColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlUpdateSong = `UPDATE songs SET
		file_id = ?, remote_file_id = ?, title = ?, artist = ?, album = ?,
		album_artist = ?, genre = ?, year = ?, track_number = ?, artwork_path = ?,
		metadata_extracted = ?, duration = ?, size = ?, date_added = ?
		WHERE id = ?`

	sqlClearAll = `DELETE FROM songs`

	sqlAlbumNames = `SELECT DISTINCT album FROM songs WHERE metadata_extracted = 1 ORDER BY album`

	sqlSongsByAlbum = `SELECT ` + songColumns + ` FROM songs WHERE album = ?
		ORDER BY track_number, title`

	sqlLatestInAlbum = `SELECT ` + songColumns + ` FROM songs WHERE album = ?
		ORDER BY date_added DESC, id DESC LIMIT 1`

	sqlArtistNames = `SELECT DISTINCT artist FROM songs
		WHERE metadata_extracted = 1 AND artist != '' ORDER BY artist`

	sqlSongsByArtist = `SELECT ` + songColumns + ` FROM songs WHERE artist = ?
		ORDER BY album, track_number, title`

	sqlLatestByArtist = `SELECT ` + songColumns + ` FROM songs WHERE artist = ?
		ORDER BY date_added DESC, id DESC LIMIT 1`

	sqlResetMetadata = `UPDATE songs SET metadata_extracted = 0, album = ?, artwork_path = NULL`

	sqlNeedingMetadata = `SELECT ` + songColumns + ` FROM songs WHERE metadata_extracted = 0
		ORDER BY date_added DESC, id DESC LIMIT ?`

	sqlPendingCount = `SELECT COUNT(*) FROM songs WHERE metadata_extracted = 0`
)

// Store is the SQLite-backed song catalog. It is the only writer to its
// database file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the catalog database at dbPath and applies
// pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("catalog opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("catalog: closing database: %w", err)
	}

	return nil
}

// InsertAll writes songs in one transaction, replacing rows with the same id.
func (s *Store) InsertAll(ctx context.Context, songs []Song) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: beginning insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := insertSongs(ctx, tx, songs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: committing insert: %w", err)
	}

	return nil
}

// ReplaceAll swaps the whole catalog for songs atomically.
func (s *Store) ReplaceAll(ctx context.Context, songs []Song) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: beginning replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, sqlClearAll); err != nil {
		return fmt.Errorf("catalog: clearing songs: %w", err)
	}

	if err := insertSongs(ctx, tx, songs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: committing replace: %w", err)
	}

	return nil
}

func insertSongs(ctx context.Context, tx *sql.Tx, songs []Song) error {
	stmt, err := tx.PrepareContext(ctx, sqlUpsertSong)
	if err != nil {
		return fmt.Errorf("catalog: preparing insert: %w", err)
	}
	defer stmt.Close()

	for i := range songs {
		song := &songs[i]
		if _, err := stmt.ExecContext(ctx,
			song.ID, song.FileID, song.RemoteFileID, song.Title, song.Artist, albumOrUnknown(song.Album),
			nullString(song.AlbumArtist), nullString(song.Genre), nullInt(song.Year), nullInt(song.TrackNumber),
			nullString(song.ArtworkPath), song.MetadataExtracted, song.Duration, song.Size, song.DateAdded,
		); err != nil {
			return fmt.Errorf("catalog: inserting song %d: %w", song.ID, err)
		}
	}

	return nil
}

func (s *Store) ClearAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlClearAll); err != nil {
		return fmt.Errorf("catalog: clearing songs: %w", err)
	}

	return nil
}

// UpdateSong overwrites the stored fields of song.ID.
func (s *Store) UpdateSong(ctx context.Context, song Song) error {
	res, err := s.db.ExecContext(ctx, sqlUpdateSong,
		song.FileID, song.RemoteFileID, song.Title, song.Artist, albumOrUnknown(song.Album),
		nullString(song.AlbumArtist), nullString(song.Genre), nullInt(song.Year), nullInt(song.TrackNumber),
		nullString(song.ArtworkPath), song.MetadataExtracted, song.Duration, song.Size, song.DateAdded,
		song.ID,
	)
	if err != nil {
		return fmt.Errorf("catalog: updating song %d: %w", song.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: updating song %d: %w", song.ID, err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %d", ErrSongNotFound, song.ID)
	}

	return nil
}

// Songs returns every song, newest first.
func (s *Store) Songs(ctx context.Context) ([]Song, error) {
	return s.query(ctx, sqlAllSongs)
}

func (s *Store) Song(ctx context.Context, id int64) (Song, error) {
	songs, err := s.query(ctx, sqlSongByID, id)
	if err != nil {
		return Song{}, err
	}

	if len(songs) == 0 {
		return Song{}, fmt.Errorf("%w: %d", ErrSongNotFound, id)
	}

	return songs[0], nil
}

func (s *Store) SongsByAlbum(ctx context.Context, album string) ([]Song, error) {
	return s.query(ctx, sqlSongsByAlbum, album)
}

func (s *Store) SongsByArtist(ctx context.Context, artist string) ([]Song, error) {
	return s.query(ctx, sqlSongsByArtist, artist)
}

// SongsNeedingMetadata returns up to limit songs whose tags have not been
// extracted yet.
func (s *Store) SongsNeedingMetadata(ctx context.Context, limit int) ([]Song, error) {
	return s.query(ctx, sqlNeedingMetadata, limit)
}

func (s *Store) PendingMetadataCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, sqlPendingCount).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: counting pending metadata: %w", err)
	}

	return n, nil
}

// ResetAllMetadata marks every song as needing extraction again and drops
// album names and artwork.
func (s *Store) ResetAllMetadata(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqlResetMetadata, UnknownAlbum); err != nil {
		return fmt.Errorf("catalog: resetting metadata: %w", err)
	}

	return nil
}

// Albums lists albums that have at least one song with extracted metadata.
func (s *Store) Albums(ctx context.Context) ([]Album, error) {
	names, err := s.names(ctx, sqlAlbumNames)
	if err != nil {
		return nil, err
	}

	albums := make([]Album, 0, len(names))

	for _, name := range names {
		songs, err := s.SongsByAlbum(ctx, name)
		if err != nil {
			return nil, err
		}

		if len(songs) == 0 {
			continue
		}

		latest, err := s.query(ctx, sqlLatestInAlbum, name)
		if err != nil {
			return nil, err
		}

		album := Album{Name: name, SongCount: len(songs), Songs: songs}
		if len(latest) > 0 {
			album.Artist = latest[0].AlbumArtist
			if album.Artist == "" {
				album.Artist = latest[0].Artist
			}

			album.ArtworkPath = latest[0].ArtworkPath
		}

		albums = append(albums, album)
	}

	return albums, nil
}

// Artists lists performers that have at least one song with extracted
// metadata.
func (s *Store) Artists(ctx context.Context) ([]Artist, error) {
	names, err := s.names(ctx, sqlArtistNames)
	if err != nil {
		return nil, err
	}

	artists := make([]Artist, 0, len(names))

	for _, name := range names {
		songs, err := s.SongsByArtist(ctx, name)
		if err != nil {
			return nil, err
		}

		if len(songs) == 0 {
			continue
		}

		latest, err := s.query(ctx, sqlLatestByArtist, name)
		if err != nil {
			return nil, err
		}

		albums := make(map[string]struct{}, len(songs))
		for i := range songs {
			albums[songs[i].Album] = struct{}{}
		}

		artist := Artist{Name: name, SongCount: len(songs), AlbumCount: len(albums)}
		if len(latest) > 0 {
			artist.ArtworkPath = latest[0].ArtworkPath
		}

		artists = append(artists, artist)
	}

	return artists, nil
}

func (s *Store) names(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing names: %w", err)
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("catalog: scanning name: %w", err)
		}

		names = append(names, name)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating names: %w", err)
	}

	return names, nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: querying songs: %w", err)
	}
	defer rows.Close()

	songs := []Song{}

	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}

		songs = append(songs, song)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterating songs: %w", err)
	}

	return songs, nil
}

func scanSong(rows *sql.Rows) (Song, error) {
	var (
		song        Song
		albumArtist sql.NullString
		genre       sql.NullString
		year        sql.NullInt64
		trackNumber sql.NullInt64
		artworkPath sql.NullString
	)

	err := rows.Scan(
		&song.ID, &song.FileID, &song.RemoteFileID, &song.Title, &song.Artist, &song.Album,
		&albumArtist, &genre, &year, &trackNumber, &artworkPath,
		&song.MetadataExtracted, &song.Duration, &song.Size, &song.DateAdded,
	)
	if err != nil {
		return Song{}, fmt.Errorf("catalog: scanning song: %w", err)
	}

	song.AlbumArtist = albumArtist.String
	song.Genre = genre.String
	song.Year = int(year.Int64)
	song.TrackNumber = int(trackNumber.Int64)
	song.ArtworkPath = artworkPath.String

	return song, nil
}

func albumOrUnknown(album string) string {
	if album == "" {
		return UnknownAlbum
	}

	return album
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
