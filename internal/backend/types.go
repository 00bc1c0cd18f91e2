// Package backend defines the JSON wire vocabulary spoken with the chat
// gateway and the full-duplex Channel that carries it. Every frame is a JSON
// object tagged with "@type"; requests carry an "@extra" token that the
// gateway echoes on the matching response.
package backend

// Object type tags the client inspects.
const (
	TypeError                    = "error"
	TypeOk                       = "ok"
	TypeFile                     = "file"
	TypeChats                    = "chats"
	TypeChat                     = "chat"
	TypeMessages                 = "messages"
	TypeMessageAudio             = "messageAudio"
	TypeUpdateAuthorizationState = "updateAuthorizationState"
	TypeUpdateFile               = "updateFile"
	TypeFileTypeAudio            = "fileTypeAudio"
)

// Tagged is any nested object the client only distinguishes by its type tag,
// such as authorization states or file types.
type Tagged struct {
	Type string `json:"@type"`
}

// Error is the gateway's failure object. It may answer any request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// File describes one remote file as known to the local session. ID is only
// valid for the current session; Remote.ID survives restarts.
type File struct {
	ID           int32      `json:"id"`
	Size         int64      `json:"size"`
	ExpectedSize int64      `json:"expected_size"`
	Local        LocalFile  `json:"local"`
	Remote       RemoteFile `json:"remote"`
}

// LocalFile is the local-storage view of a File. Path may be non-empty while
// the download is still in progress.
type LocalFile struct {
	Path                   string `json:"path"`
	CanBeDownloaded        bool   `json:"can_be_downloaded"`
	IsDownloadingActive    bool   `json:"is_downloading_active"`
	IsDownloadingCompleted bool   `json:"is_downloading_completed"`
	DownloadOffset         int64  `json:"download_offset"`
	DownloadedPrefixSize   int64  `json:"downloaded_prefix_size"`
	DownloadedSize         int64  `json:"downloaded_size"`
}

// RemoteFile is the durable identity of a File.
type RemoteFile struct {
	ID       string `json:"id"`
	UniqueID string `json:"unique_id"`
}

// Chats lists chat identifiers in the order the gateway returned them.
type Chats struct {
	TotalCount int32   `json:"total_count"`
	ChatIDs    []int64 `json:"chat_ids"`
}

// Chat is the subset of chat fields the client needs.
type Chat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Messages is one page of chat history, newest first.
type Messages struct {
	TotalCount int32     `json:"total_count"`
	Messages   []Message `json:"messages"`
}

// Message is a single chat message.
type Message struct {
	ID      int64          `json:"id"`
	ChatID  int64          `json:"chat_id"`
	Date    int32          `json:"date"`
	Content MessageContent `json:"content"`
}

// MessageContent is the polymorphic message body. Only audio content is
// decoded; other kinds keep just their type tag.
type MessageContent struct {
	Type  string `json:"@type"`
	Audio *Audio `json:"audio,omitempty"`
}

// Audio is an audio attachment.
type Audio struct {
	Duration  int32  `json:"duration"`
	Title     string `json:"title"`
	Performer string `json:"performer"`
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	Audio     File   `json:"audio"`
}

// UpdateAuthorizationState is pushed whenever the session's authorization
// state changes.
type UpdateAuthorizationState struct {
	AuthorizationState Tagged `json:"authorization_state"`
}

// UpdateFile is pushed while a file is downloading.
type UpdateFile struct {
	File File `json:"file"`
}
