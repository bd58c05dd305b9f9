// Package cache holds state derived during one export cycle.
package cache

import (
	"sync"

	"github.com/snapetech/vodka-export/internal/catalog"
)

// FileLookup maps a channel's EPG id to the media file id that backs its
// catch-up links. Each export cycle rebuilds it with Populate; it is handed to
// the pipeline explicitly instead of living in shared addon settings.
type FileLookup struct {
	mu    sync.RWMutex
	files map[string]string
}

func NewFileLookup() *FileLookup {
	return &FileLookup{files: make(map[string]string)}
}

// Populate replaces the contents with the entitled file of every channel.
// Channels without an entitled file get no entry. Returns the entry count.
func (l *FileLookup) Populate(channels []catalog.Channel, entitled func(fileID string) bool) int {
	files := make(map[string]string, len(channels))
	for _, ch := range channels {
		f, ok := ch.EntitledFile(entitled)
		if !ok {
			continue
		}
		if _, dup := files[ch.EPGID]; dup {
			continue
		}
		files[ch.EPGID] = f
	}
	l.mu.Lock()
	l.files = files
	l.mu.Unlock()
	return len(files)
}

// Set records fileID for epgID.
func (l *FileLookup) Set(epgID, fileID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.files == nil {
		l.files = make(map[string]string)
	}
	l.files[epgID] = fileID
}

// FileID returns the file backing epgID.
func (l *FileLookup) FileID(epgID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	id, ok := l.files[epgID]
	return id, ok
}

func (l *FileLookup) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.files)
}

// Reset drops every entry.
func (l *FileLookup) Reset() {
	l.mu.Lock()
	l.files = make(map[string]string)
	l.mu.Unlock()
}
