package workspace

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// ErrFetch wraps source acquisition failures.
var ErrFetch = errors.New("source fetch failed")

// Resolve turns a source reference into a local directory ready for
// scanning. Supported forms, tried in order:
//
//   - an existing local directory, returned as-is
//   - a local .zip archive, extracted to a temp directory
//   - a git URL (http(s)://, git@, or anything ending in .git), shallow
//     cloned to a temp directory
//
// cleanup removes any temp directory Resolve created; it is always non-nil
// and safe to call.
func Resolve(ctx context.Context, source string, loggerHandler slog.Handler) (dir string, cleanup func(), err error) {
	if loggerHandler == nil {
		loggerHandler = slog.NewTextHandler(io.Discard, nil)
	}
	logger := slog.New(loggerHandler).With(slog.String("component", "fetch"))
	noop := func() {}

	if isGitURL(source) {
		tmp, err := os.MkdirTemp("", "l2m-clone-*")
		if err != nil {
			return "", noop, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		cleanup := func() { os.RemoveAll(tmp) }
		logger.Info("Cloning repository", slog.String("url", source))
		_, err = git.PlainCloneContext(ctx, tmp, false, &git.CloneOptions{
			URL:   source,
			Depth: 1,
		})
		if err != nil {
			cleanup()
			return "", noop, fmt.Errorf("%w: cloning %s: %v", ErrFetch, source, err)
		}
		return tmp, cleanup, nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return "", noop, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	if info.IsDir() {
		return source, noop, nil
	}
	if strings.EqualFold(filepath.Ext(source), ".zip") {
		tmp, err := os.MkdirTemp("", "l2m-zip-*")
		if err != nil {
			return "", noop, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		cleanup := func() { os.RemoveAll(tmp) }
		logger.Info("Extracting archive", slog.String("path", source))
		if err := extractZip(source, tmp); err != nil {
			cleanup()
			return "", noop, err
		}
		return tmp, cleanup, nil
	}
	return "", noop, fmt.Errorf("%w: %s is neither a directory, a .zip archive nor a git URL", ErrFetch, source)
}

func isGitURL(source string) bool {
	return strings.HasPrefix(source, "http://") ||
		strings.HasPrefix(source, "https://") ||
		strings.HasPrefix(source, "git@") ||
		strings.HasPrefix(source, "ssh://") ||
		strings.HasSuffix(source, ".git")
}

// extractZip unpacks archive into destDir, refusing entries that would
// escape it.
func extractZip(archive, destDir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %v", ErrFetch, archive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("%w: archive entry %q escapes extraction directory", ErrFetch, f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("%w: %v", ErrFetch, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrFetch, err)
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: opening entry %s: %v", ErrFetch, f.Name, err)
	}
	defer src.Close()
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: extracting %s: %v", ErrFetch, f.Name, err)
	}
	return nil
}
