// Package catalog keeps the local index of songs stored in the library
// channel: a SQLite store and the Syncer that fills it from chat history.
package catalog

import "errors"

// Placeholder names for songs without tags.
const (
	UnknownAlbum  = "Unknown Album"
	UnknownArtist = "Unknown Artist"
)

// ErrSongNotFound is returned when no song has the requested id.
var ErrSongNotFound = errors.New("catalog: song not found")

// Song is one audio message in the library channel. ID is the message id;
// FileID is only valid for the current backend session, RemoteFileID
// survives restarts. Zero values of the optional tag fields mean unknown.
type Song struct {
	ID                int64  `json:"id"`
	FileID            int32  `json:"file_id"`
	RemoteFileID      string `json:"remote_file_id"`
	Title             string `json:"title"`
	Artist            string `json:"artist"`
	Album             string `json:"album"`
	AlbumArtist       string `json:"album_artist,omitempty"`
	Genre             string `json:"genre,omitempty"`
	Year              int    `json:"year,omitempty"`
	TrackNumber       int    `json:"track_number,omitempty"`
	ArtworkPath       string `json:"artwork_path,omitempty"`
	MetadataExtracted bool   `json:"metadata_extracted"`
	Duration          int32  `json:"duration"`
	Size              int64  `json:"size"`
	DateAdded         int64  `json:"date_added"`
}

// Album aggregates the songs sharing an album name. Artist and ArtworkPath
// come from the most recently added song.
type Album struct {
	Name        string `json:"name"`
	Artist      string `json:"artist,omitempty"`
	ArtworkPath string `json:"artwork_path,omitempty"`
	SongCount   int    `json:"song_count"`
	Songs       []Song `json:"songs"`
}

// Artist aggregates the songs by one performer.
type Artist struct {
	Name        string `json:"name"`
	ArtworkPath string `json:"artwork_path,omitempty"`
	SongCount   int    `json:"song_count"`
	AlbumCount  int    `json:"album_count"`
}
