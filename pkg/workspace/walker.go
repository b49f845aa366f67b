// Package workspace turns a project source (local directory, zip archive or
// git URL) into the flat list of work items the engine partitions. It owns
// file discovery, ignore rules, binary detection, encoding normalization and
// kind classification.
package workspace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"

	"github.com/astrio-ai/legacy2modern/pkg/engine"
)

// IgnoreFileName is the per-project ignore file, gitignore syntax.
const IgnoreFileName = ".l2mignore"

// DefaultLargeFileThresholdMB is the size above which files are skipped.
const DefaultLargeFileThresholdMB = 10

// ErrScan wraps unrecoverable traversal failures.
var ErrScan = errors.New("workspace scan failed")

// defaultIgnores are always active, independent of the project's own ignore
// file. They cover VCS metadata and common dependency/build trees.
var defaultIgnores = []string{
	".git/",
	"node_modules/",
	"bower_components/",
	"dist/",
	"build/",
	".l2m.cache.json",
	IgnoreFileName,
}

// ScanOptions configures a Scanner.
type ScanOptions struct {
	// IgnorePatterns are additional gitignore-style patterns, applied after
	// the defaults and the project's ignore file.
	IgnorePatterns []string
	// LargeFileThresholdMB bounds the size of files read into memory; zero
	// means DefaultLargeFileThresholdMB.
	LargeFileThresholdMB int
	// IncludeBinary keeps binary files as payload-less items (size hint
	// only) instead of skipping them.
	IncludeBinary bool
}

// Scanner walks a project root and produces engine work items.
type Scanner struct {
	root    string
	opts    ScanOptions
	matcher gitignore.Matcher
	logger  *slog.Logger
}

// NewScanner creates a Scanner for root. The project's ignore file (if any)
// is loaded here so pattern errors surface before the walk begins.
func NewScanner(root string, opts ScanOptions, loggerHandler slog.Handler) (*Scanner, error) {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "scanner"))

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving root %s: %v", ErrScan, root, err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScan, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrScan, absRoot)
	}

	patterns := make([]gitignore.Pattern, 0, len(defaultIgnores)+len(opts.IgnorePatterns))
	for _, p := range defaultIgnores {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	filePatterns, err := loadIgnoreFile(filepath.Join(absRoot, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, filePatterns...)
	for _, p := range opts.IgnorePatterns {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	logger.Debug("Ignore patterns loaded", slog.Int("count", len(patterns)))

	if opts.LargeFileThresholdMB <= 0 {
		opts.LargeFileThresholdMB = DefaultLargeFileThresholdMB
	}
	return &Scanner{
		root:    absRoot,
		opts:    opts,
		matcher: gitignore.NewMatcher(patterns),
		logger:  logger,
	}, nil
}

// Scan walks the root and returns the discovered work items in traversal
// order. Skips (ignored, binary, oversized, undecodable) are logged, not
// errors; only a failed traversal aborts the scan.
func (s *Scanner) Scan() ([]engine.WorkItem, error) {
	var items []engine.WorkItem
	skipped := 0

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: at %s: %v", ErrScan, p, err)
		}
		rel, relErr := filepath.Rel(s.root, p)
		if relErr != nil {
			return fmt.Errorf("%w: %v", ErrScan, relErr)
		}
		if rel == "." {
			return nil
		}
		segments := strings.Split(filepath.ToSlash(rel), "/")

		if d.IsDir() {
			if s.matcher.Match(segments, true) {
				s.logger.Debug("Directory ignored", slog.String("path", rel))
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			s.logger.Debug("Symlink skipped", slog.String("path", rel))
			skipped++
			return nil
		}
		if s.matcher.Match(segments, false) {
			s.logger.Debug("File ignored", slog.String("path", rel))
			skipped++
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			s.logger.Warn("Cannot stat file, skipping", slog.String("path", rel), slog.String("error", infoErr.Error()))
			skipped++
			return nil
		}
		if info.Size() > int64(s.opts.LargeFileThresholdMB)*1024*1024 {
			s.logger.Warn("Large file skipped",
				slog.String("path", rel),
				slog.Int64("sizeBytes", info.Size()),
				slog.Int("thresholdMB", s.opts.LargeFileThresholdMB))
			skipped++
			return nil
		}

		item, ok := s.readItem(rel, p, info)
		if !ok {
			skipped++
			return nil
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Workspace scan complete",
		slog.String("root", s.root),
		slog.Int("items", len(items)),
		slog.Int("skipped", skipped))
	return items, nil
}

// readItem loads one file into a WorkItem. Binary files become payload-less
// size-hint items when IncludeBinary is set, otherwise they are dropped.
func (s *Scanner) readItem(rel, abs string, info fs.FileInfo) (engine.WorkItem, bool) {
	content, err := os.ReadFile(abs)
	if err != nil {
		s.logger.Warn("Cannot read file, skipping", slog.String("path", rel), slog.String("error", err.Error()))
		return engine.WorkItem{}, false
	}
	id := filepath.ToSlash(rel)

	if IsBinary(content) {
		if !s.opts.IncludeBinary {
			s.logger.Debug("Binary file skipped", slog.String("path", rel))
			return engine.WorkItem{}, false
		}
		return engine.WorkItem{
			ID:       id,
			Kind:     Classify(rel, nil),
			SizeHint: int(info.Size()),
		}, true
	}

	decoded, err := DecodeToUTF8(content)
	if err != nil {
		s.logger.Warn("Undecodable file skipped", slog.String("path", rel), slog.String("error", err.Error()))
		return engine.WorkItem{}, false
	}
	return engine.WorkItem{
		ID:       id,
		Payload:  decoded,
		Kind:     Classify(rel, decoded),
		SizeHint: int(info.Size()),
	}, true
}

// loadIgnoreFile parses a gitignore-syntax file. A missing file yields no
// patterns.
func loadIgnoreFile(path string) ([]gitignore.Pattern, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: opening %s: %v", ErrScan, path, err)
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrScan, path, err)
	}
	return patterns, nil
}
