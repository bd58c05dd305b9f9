// Package publish writes export artifacts with a temp-file-then-rename
// strategy so readers never see a partially-written file.
package publish

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/avfs/avfs"
	"github.com/avfs/avfs/vfs/osfs"
)

// TempSuffix ends every temp file name. Temp files are hidden siblings of the
// destination, unique per Begin: .<name>.<random>.tmp
const TempSuffix = ".tmp"

// Error is an I/O failure while preparing, writing or publishing an artifact.
type Error struct {
	Op   string // "mkdir", "create", "write", "close", "rename", "remove"
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publish %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Publisher creates pending artifacts on a filesystem.
type Publisher struct {
	FS avfs.VFS
}

// New returns a Publisher over vfs; nil uses the host filesystem.
func New(vfs avfs.VFS) *Publisher {
	if vfs == nil {
		vfs = osfs.New()
	}
	return &Publisher{FS: vfs}
}

// EnsureDir creates dir (and parents) when missing.
func (p *Publisher) EnsureDir(dir string) error {
	if err := p.FS.MkdirAll(dir, 0o755); err != nil {
		return &Error{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// Begin opens a fresh temp file next to dest. The destination is not touched
// until Commit, and concurrent writers to the same dest never share a temp file.
func (p *Publisher) Begin(dest string) (*Pending, error) {
	dest = filepath.Clean(dest)
	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}
	f, err := p.FS.CreateTemp(dir, "."+base+".*"+TempSuffix)
	if err != nil {
		return nil, &Error{Op: "create", Path: dest, Err: err}
	}
	tmp := f.Name()
	if err := p.FS.Chmod(tmp, 0o644); err != nil {
		_ = f.Close()
		_ = p.FS.Remove(tmp)
		return nil, &Error{Op: "create", Path: tmp, Err: err}
	}
	return &Pending{
		vfs:  p.FS,
		dest: dest,
		tmp:  tmp,
		f:    f,
		w:    bufio.NewWriterSize(f, 64*1024),
	}, nil
}

// Publish runs write against a pending artifact and commits it when write
// returns nil. On any error the temp file is removed and dest is left as it was.
func (p *Publisher) Publish(dest string, write func(io.Writer) error) error {
	pend, err := p.Begin(dest)
	if err != nil {
		return err
	}
	if err := write(pend); err != nil {
		_ = pend.Abort()
		return err
	}
	return pend.Commit()
}

// TempFiles lists the temp files currently in dir.
func (p *Publisher) TempFiles(dir string) ([]string, error) {
	entries, err := p.FS.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, de := range entries {
		name := de.Name()
		if de.Type().IsRegular() && strings.HasPrefix(name, ".") && strings.HasSuffix(name, TempSuffix) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	return out, nil
}

// SweepTemps removes temp files in dir last modified before cutoff, left
// behind by a writer that died before Commit or Abort.
func (p *Publisher) SweepTemps(dir string, cutoff time.Time) ([]string, error) {
	temps, err := p.TempFiles(dir)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, name := range temps {
		fi, err := p.FS.Stat(name)
		if err != nil || !fi.ModTime().Before(cutoff) {
			continue
		}
		if err := p.FS.Remove(name); err != nil {
			return removed, &Error{Op: "remove", Path: name, Err: err}
		}
		removed = append(removed, name)
	}
	return removed, nil
}

// Pending is an artifact being written to its temp path.
type Pending struct {
	vfs  avfs.VFS
	dest string
	tmp  string
	f    avfs.File
	w    *bufio.Writer
	n    int64
	done bool
}

// Write appends to the temp file.
func (p *Pending) Write(b []byte) (int, error) {
	if p.done {
		return 0, &Error{Op: "write", Path: p.tmp, Err: fs.ErrClosed}
	}
	n, err := p.w.Write(b)
	p.n += int64(n)
	if err != nil {
		return n, &Error{Op: "write", Path: p.tmp, Err: err}
	}
	return n, nil
}

// Written is the number of bytes accepted so far.
func (p *Pending) Written() int64 { return p.n }

// TempPath is where the artifact is being written.
func (p *Pending) TempPath() string { return p.tmp }

// Commit flushes, closes and renames the temp file over the destination.
// With concurrent writers the last Commit wins.
func (p *Pending) Commit() error {
	if p.done {
		return &Error{Op: "rename", Path: p.dest, Err: fs.ErrClosed}
	}
	p.done = true
	if err := p.w.Flush(); err != nil {
		p.discard()
		return &Error{Op: "write", Path: p.tmp, Err: err}
	}
	if err := p.f.Close(); err != nil {
		_ = p.vfs.Remove(p.tmp)
		return &Error{Op: "close", Path: p.tmp, Err: err}
	}
	if err := p.vfs.Rename(p.tmp, p.dest); err != nil {
		_ = p.vfs.Remove(p.tmp)
		return &Error{Op: "rename", Path: p.dest, Err: err}
	}
	return nil
}

// Abort discards the temp file. Safe to call more than once and after Commit.
func (p *Pending) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	p.discard()
	return nil
}

func (p *Pending) discard() {
	_ = p.f.Close()
	_ = p.vfs.Remove(p.tmp)
}
