package export

import (
	"errors"
)

// User-facing messages for foreground exports.
const (
	NoticePath        = "Export failed: the export folder, file name or EPG window is not set, or the folder cannot be created."
	NoticeCredentials = "Export failed: set the username and password first."
	NoticeFailed      = "Export failed. See the log for details."
	NoticeChannelsOK  = "Channel list exported."
	NoticeEPGOK       = "EPG exported."
)

// Notice maps the outcome of a foreground export of kind to one message.
func Notice(kind string, err error) string {
	switch {
	case err == nil && kind == KindEPG:
		return NoticeEPGOK
	case err == nil:
		return NoticeChannelsOK
	case errors.Is(err, ErrExportPath), errors.Is(err, ErrConfig):
		return NoticePath
	case errors.Is(err, ErrCredentials):
		return NoticeCredentials
	default:
		return NoticeFailed
	}
}
