package backend

// Function is a request the gateway can execute. Type returns the "@type"
// tag written next to the function's own fields.
type Function interface {
	Type() string
}

// SetTdlibParameters configures the session. Sent once per client.
type SetTdlibParameters struct {
	UseTestDC             bool   `json:"use_test_dc"`
	DatabaseDirectory     string `json:"database_directory"`
	FilesDirectory        string `json:"files_directory"`
	DatabaseEncryptionKey string `json:"database_encryption_key"`
	UseFileDatabase       bool   `json:"use_file_database"`
	UseChatInfoDatabase   bool   `json:"use_chat_info_database"`
	UseMessageDatabase    bool   `json:"use_message_database"`
	UseSecretChats        bool   `json:"use_secret_chats"`
	APIID                 int32  `json:"api_id"`
	APIHash               string `json:"api_hash"`
	SystemLanguageCode    string `json:"system_language_code"`
	DeviceModel           string `json:"device_model"`
	SystemVersion         string `json:"system_version"`
	ApplicationVersion    string `json:"application_version"`
}

func (SetTdlibParameters) Type() string { return "setTdlibParameters" }

type SetAuthenticationPhoneNumber struct {
	PhoneNumber string `json:"phone_number"`
}

func (SetAuthenticationPhoneNumber) Type() string { return "setAuthenticationPhoneNumber" }

type CheckAuthenticationCode struct {
	Code string `json:"code"`
}

func (CheckAuthenticationCode) Type() string { return "checkAuthenticationCode" }

type CheckAuthenticationPassword struct {
	Password string `json:"password"`
}

func (CheckAuthenticationPassword) Type() string { return "checkAuthenticationPassword" }

type LogOut struct{}

func (LogOut) Type() string { return "logOut" }

// DownloadFile asks the gateway to start (or reprioritize) a download.
// Priority ranges 1..32. With Synchronous set the response is delayed until
// the download finishes or fails.
type DownloadFile struct {
	FileID      int32 `json:"file_id"`
	Priority    int32 `json:"priority"`
	Offset      int64 `json:"offset"`
	Limit       int64 `json:"limit"`
	Synchronous bool  `json:"synchronous"`
}

func (DownloadFile) Type() string { return "downloadFile" }

type GetFile struct {
	FileID int32 `json:"file_id"`
}

func (GetFile) Type() string { return "getFile" }

// GetRemoteFile resolves a durable remote id to a session file.
type GetRemoteFile struct {
	RemoteFileID string  `json:"remote_file_id"`
	FileType     *Tagged `json:"file_type,omitempty"`
}

func (GetRemoteFile) Type() string { return "getRemoteFile" }

type GetChats struct {
	Limit int32 `json:"limit"`
}

func (GetChats) Type() string { return "getChats" }

type GetChat struct {
	ChatID int64 `json:"chat_id"`
}

func (GetChat) Type() string { return "getChat" }

type CreateNewSupergroupChat struct {
	Title       string `json:"title"`
	IsChannel   bool   `json:"is_channel"`
	Description string `json:"description"`
}

func (CreateNewSupergroupChat) Type() string { return "createNewSupergroupChat" }

// GetChatHistory returns messages older than FromMessageID (0 = newest).
type GetChatHistory struct {
	ChatID        int64 `json:"chat_id"`
	FromMessageID int64 `json:"from_message_id"`
	Offset        int32 `json:"offset"`
	Limit         int32 `json:"limit"`
	OnlyLocal     bool  `json:"only_local"`
}

func (GetChatHistory) Type() string { return "getChatHistory" }
