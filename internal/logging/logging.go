// Package logging owns the process-wide log file: one file per run, written next to the
// console output, with old runs swept by age and total size at startup.
package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultDir     = "logs"
	DefaultMaxAge  = 10 * 24 * time.Hour
	DefaultMaxSize = 100 << 20

	fileTimeLayout = "2006-01-02_15-04-05"
)

var ErrAlreadyStarted = errors.New("logging already started")

type Config struct {
	Level   zap.AtomicLevel
	Dir     string
	MaxAge  time.Duration
	MaxSize int64
}

var (
	mu      sync.Mutex
	started bool
)

// Start sweeps the log directory, opens a new log file in it and returns a logger that
// writes to both the console and the file. It may run once until Close is called.
func Start(cfg Config) (*zap.Logger, func() error, error) {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil, nil, ErrAlreadyStarted
	}

	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxSize
	}

	removed, sweepErr := Sweep(cfg.Dir, cfg.MaxAge, cfg.MaxSize, time.Now())

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("couldn't create log directory: %w", err)
	}
	path := filepath.Join(cfg.Dir, time.Now().Format(fileTimeLayout)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't open log file: %w", err)
	}

	consoleEnc := zap.NewDevelopmentEncoderConfig()
	consoleEnc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	fileEnc := zap.NewDevelopmentEncoderConfig()
	fileEnc.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEnc), zapcore.Lock(os.Stdout), cfg.Level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(fileEnc), zapcore.Lock(f), cfg.Level),
	)
	log := zap.New(core)
	started = true

	for _, r := range removed {
		log.Sugar().Infof("Removed log file %s.", r)
	}
	if sweepErr != nil {
		log.Sugar().Warnf("Failed to sweep log directory: %s.", sweepErr)
	}
	log.Sugar().Debugf("Logging to %s.", path)

	closeFn := func() error {
		mu.Lock()
		defer mu.Unlock()
		_ = log.Sync()
		started = false
		return f.Close()
	}
	return log, closeFn, nil
}

type logFile struct {
	path    string
	modTime time.Time
}

// Sweep removes every regular file in dir modified at least maxAge before now. If the
// files seen, removed ones included, total maxSize or more, the oldest remaining file is
// removed as well. A missing dir is not an error. It returns the removed paths.
func Sweep(dir string, maxAge time.Duration, maxSize int64, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var (
		removed []string
		kept    []logFile
		total   int64
	)
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return removed, err
		}
		path := filepath.Join(dir, e.Name())
		total += info.Size()

		if now.Sub(info.ModTime()) >= maxAge {
			if err := os.Remove(path); err != nil {
				return removed, err
			}
			removed = append(removed, path)
			continue
		}
		kept = append(kept, logFile{path, info.ModTime()})
	}

	if total >= maxSize && len(kept) > 0 {
		sort.Slice(kept, func(i, j int) bool { return kept[i].modTime.Before(kept[j].modTime) })
		if err := os.Remove(kept[0].path); err != nil {
			return removed, err
		}
		removed = append(removed, kept[0].path)
	}
	return removed, nil
}
