package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudplay/internal/backend"
	"github.com/tonimelisma/cloudplay/internal/bridge"
	"github.com/tonimelisma/cloudplay/internal/metrics"
)

// Syncer defaults.
const (
	DefaultChatTitle       = "PixelPlay Cloud"
	DefaultChatDescription = "Your music cloud for PixelPlayer"
	DefaultHistoryPageSize = 50
	DefaultChatScanLimit   = 100
	DefaultLookupWorkers   = 8

	// Guards against a gateway that keeps returning the same page.
	maxHistoryPages = 10000
)

// ErrNoLibraryChat is returned when the library channel can neither be found
// nor created.
var ErrNoLibraryChat = errors.New("catalog: library chat unavailable")

// SyncerOptions tunes a Syncer. Zero fields use the defaults.
type SyncerOptions struct {
	ChatTitle       string
	ChatDescription string
	HistoryPageSize int32
	ChatScanLimit   int32
	LookupWorkers   int
}

// SyncResult summarizes one Sync.
type SyncResult struct {
	ChatID   int64
	Messages int
	Songs    int
	Replaced bool
}

// Syncer fills the Store from the audio messages of the library channel.
type Syncer struct {
	caller bridge.Caller
	store  *Store
	opts   SyncerOptions
	logger *slog.Logger
}

func NewSyncer(caller bridge.Caller, store *Store, opts SyncerOptions, logger *slog.Logger) *Syncer {
	if opts.ChatTitle == "" {
		opts.ChatTitle = DefaultChatTitle
	}

	if opts.ChatDescription == "" {
		opts.ChatDescription = DefaultChatDescription
	}

	if opts.HistoryPageSize <= 0 {
		opts.HistoryPageSize = DefaultHistoryPageSize
	}

	if opts.ChatScanLimit <= 0 {
		opts.ChatScanLimit = DefaultChatScanLimit
	}

	if opts.LookupWorkers <= 0 {
		opts.LookupWorkers = DefaultLookupWorkers
	}

	return &Syncer{caller: caller, store: store, opts: opts, logger: logger}
}

// FindOrCreateChat returns the id of the library channel, creating it when
// none of the user's chats carries the configured title. When several chats
// match, the one listed first wins.
func (s *Syncer) FindOrCreateChat(ctx context.Context) (int64, error) {
	chats, err := bridge.CallAs[backend.Chats](ctx, s.caller, backend.GetChats{Limit: s.opts.ChatScanLimit}, backend.TypeChats)
	if err != nil {
		return 0, fmt.Errorf("%w: listing chats: %w", ErrNoLibraryChat, err)
	}

	if id, ok := s.findChat(ctx, chats.ChatIDs); ok {
		s.logger.Debug("library chat found", slog.Int64("chat_id", id))
		return id, nil
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	created, err := bridge.CallAs[backend.Chat](ctx, s.caller, backend.CreateNewSupergroupChat{
		Title:       s.opts.ChatTitle,
		IsChannel:   true,
		Description: s.opts.ChatDescription,
	}, backend.TypeChat)
	if err != nil {
		return 0, fmt.Errorf("%w: creating %q: %w", ErrNoLibraryChat, s.opts.ChatTitle, err)
	}

	s.logger.Info("library chat created",
		slog.Int64("chat_id", created.ID),
		slog.String("title", s.opts.ChatTitle),
	)

	return created.ID, nil
}

// findChat looks up every chat in parallel and returns the first id, in list
// order, whose title matches. Lookups that fail are skipped.
func (s *Syncer) findChat(ctx context.Context, ids []int64) (int64, bool) {
	var (
		mu   sync.Mutex
		best = -1
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.LookupWorkers)

	for i, id := range ids {
		g.Go(func() error {
			chat, err := bridge.CallAs[backend.Chat](gctx, s.caller, backend.GetChat{ChatID: id}, backend.TypeChat)
			if err != nil {
				s.logger.Debug("chat lookup failed",
					slog.Int64("chat_id", id),
					slog.String("error", err.Error()),
				)

				return nil
			}

			if chat.Title != s.opts.ChatTitle {
				return nil
			}

			mu.Lock()
			if best < 0 || i < best {
				best = i
			}
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // workers never fail

	if best < 0 {
		return 0, false
	}

	return ids[best], true
}

// AudioMessages pages through the chat history, newest first, and keeps the
// messages that carry audio.
func (s *Syncer) AudioMessages(ctx context.Context, chatID int64) ([]backend.Message, error) {
	var (
		out  []backend.Message
		from int64
	)

	for page := 0; page < maxHistoryPages; page++ {
		msgs, err := bridge.CallAs[backend.Messages](ctx, s.caller, backend.GetChatHistory{
			ChatID:        chatID,
			FromMessageID: from,
			Limit:         s.opts.HistoryPageSize,
		}, backend.TypeMessages)
		if err != nil {
			return nil, fmt.Errorf("catalog: reading history of chat %d: %w", chatID, err)
		}

		if len(msgs.Messages) == 0 {
			break
		}

		for i := range msgs.Messages {
			m := msgs.Messages[i]
			if m.Content.Type == backend.TypeMessageAudio && m.Content.Audio != nil {
				out = append(out, m)
			}
		}

		next := msgs.Messages[len(msgs.Messages)-1].ID
		if next == from {
			break
		}

		from = next
	}

	return out, nil
}

// Sync rebuilds the catalog from the library channel. The stored catalog is
// replaced only when the channel yielded at least one song.
func (s *Syncer) Sync(ctx context.Context) (SyncResult, error) {
	chatID, err := s.FindOrCreateChat(ctx)
	if err != nil {
		return SyncResult{}, err
	}

	msgs, err := s.AudioMessages(ctx, chatID)
	if err != nil {
		return SyncResult{ChatID: chatID}, err
	}

	songs := make([]Song, 0, len(msgs))
	for i := range msgs {
		songs = append(songs, SongFromMessage(msgs[i]))
	}

	res := SyncResult{ChatID: chatID, Messages: len(msgs), Songs: len(songs)}

	if len(songs) == 0 {
		s.logger.Info("library chat has no audio, keeping catalog", slog.Int64("chat_id", chatID))
		return res, nil
	}

	if err := s.store.ReplaceAll(ctx, songs); err != nil {
		return res, err
	}

	res.Replaced = true
	metrics.CatalogSongs.Set(float64(len(songs)))

	s.logger.Info("catalog synced",
		slog.Int64("chat_id", chatID),
		slog.Int("songs", len(songs)),
	)

	return res, nil
}

// SongFromMessage maps an audio message to a catalog entry. A missing title
// falls back to the file name and a blank performer to UnknownArtist.
func SongFromMessage(m backend.Message) Song {
	var a backend.Audio
	if m.Content.Audio != nil {
		a = *m.Content.Audio
	}

	title := a.Title
	if title == "" {
		title = a.FileName
	}

	artist := strings.TrimSpace(a.Performer)
	if artist == "" {
		artist = UnknownArtist
	}

	return Song{
		ID:           m.ID,
		FileID:       a.Audio.ID,
		RemoteFileID: a.Audio.Remote.ID,
		Title:        norm.NFC.String(title),
		Artist:       norm.NFC.String(artist),
		Album:        UnknownAlbum,
		Duration:     a.Duration,
		Size:         a.Audio.Size,
		DateAdded:    int64(m.Date),
	}
}
