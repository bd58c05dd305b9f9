// Package logging points the standard logger at stderr and, optionally, a
// size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log output. An empty File logs to stderr only.
type Options struct {
	Prefix     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup applies opts to the standard logger. The returned closer releases
// the log file; it is never nil.
func Setup(opts Options) (io.Closer, error) {
	log.SetFlags(log.LstdFlags)
	log.SetPrefix(opts.Prefix)
	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		log.SetOutput(os.Stderr)
		return nopCloser{}, err
	}
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	log.Printf("logging to %s", opts.File)
	return lj, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
