package stream

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseFileID extracts the numeric file id from a remote-file URI. The id
// may sit in the host (remote-file://42) or the path (remote-file:///42).
func ParseFileID(u *url.URL) (int32, error) {
	if u == nil {
		return 0, fmt.Errorf("%w: missing uri", ErrInvalidRequestIdentifier)
	}

	if u.Scheme != SchemeRemoteFile {
		return 0, fmt.Errorf("%w: scheme %q", ErrInvalidRequestIdentifier, u.Scheme)
	}

	raw := u.Host
	if raw == "" {
		raw = strings.TrimPrefix(u.Path, "/")
	}

	if raw == "" {
		raw = u.Opaque
	}

	id, err := strconv.ParseInt(raw, 10, 32)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRequestIdentifier, u.String())
	}

	return int32(id), nil
}

// RemoteFileURI builds the URI the progressive Reader serves for fileID.
func RemoteFileURI(fileID int32) *url.URL {
	return &url.URL{Scheme: SchemeRemoteFile, Host: strconv.FormatInt(int64(fileID), 10)}
}
