// Package filesystem implements the per-file directory storage backend
// (one file per item, identified by its own name) described in §4.2.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/yinjun1991/vdirstore/config"
	"github.com/yinjun1991/vdirstore/href"
	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/storage"
)

// Storage is a directory of one-file-per-item vobjects sharing a fixed
// extension.
type Storage struct {
	path        string
	fileExt     string
	postHook    string
	hookTimeout time.Duration
	log         zerolog.Logger
}

// New opens path as a per-file collection. path is used as given; callers
// are responsible for shell/tilde expansion of cfg.Path before calling.
func New(cfg config.Filesystem, log zerolog.Logger) *Storage {
	return &Storage{
		path:        cfg.Path,
		fileExt:     cfg.FileExt,
		postHook:    cfg.PostHook,
		hookTimeout: 30 * time.Second,
		log:         log,
	}
}

func (s *Storage) filePath(h string) string { return filepath.Join(s.path, h) }

func etagFromInfo(fi os.FileInfo) (string, error) {
	sys, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return "", fmt.Errorf("filesystem: unsupported platform for etag derivation")
	}
	mtime := fi.ModTime()
	return fmt.Sprintf("%d.%d;%d", mtime.Unix(), mtime.Nanosecond(), sys.Ino), nil
}

func handleIOError(href string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &storage.Error{Kind: storage.ItemNotFound, Href: href, Err: err}
	case errors.Is(err, fs.ErrExist):
		return &storage.Error{Kind: storage.ItemAlreadyExisting, Href: href, Err: err}
	default:
		return err
	}
}

func (s *Storage) List(ctx context.Context) ([]storage.ListedItem, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, err
	}

	var out []storage.ListedItem
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), s.fileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		etag, err := etagFromInfo(info)
		if err != nil {
			continue
		}
		out = append(out, storage.ListedItem{Href: entry.Name(), ETag: etag})
	}
	return out, nil
}

func (s *Storage) Get(ctx context.Context, h string) (*item.Item, string, error) {
	raw, err := os.ReadFile(s.filePath(h))
	if err != nil {
		return nil, "", handleIOError(h, err)
	}
	info, err := os.Stat(s.filePath(h))
	if err != nil {
		return nil, "", handleIOError(h, err)
	}
	etag, err := etagFromInfo(info)
	if err != nil {
		return nil, "", err
	}
	return item.FromRaw(string(raw)), etag, nil
}

func (s *Storage) Upload(ctx context.Context, it *item.Item) (string, string, error) {
	ident, err := it.Ident()
	if err != nil {
		return "", "", &storage.Error{Kind: storage.ItemUnparseable, Err: err}
	}

	h := href.Generate(ident) + s.fileExt
	etag, err := s.writeAtomic(h, it.Raw(), false)
	if err != nil {
		if errors.Is(err, syscall.ENAMETOOLONG) {
			h = href.Random() + s.fileExt
			etag, err = s.writeAtomic(h, it.Raw(), false)
		}
		if err != nil {
			return "", "", handleIOError(h, err)
		}
	}

	s.runPostHook(s.filePath(h))
	return h, etag, nil
}

func (s *Storage) Update(ctx context.Context, h string, it *item.Item, etag string) (string, error) {
	info, err := os.Stat(s.filePath(h))
	if err != nil {
		return "", handleIOError(h, err)
	}
	current, err := etagFromInfo(info)
	if err != nil {
		return "", err
	}
	if current != etag {
		return "", &storage.Error{Kind: storage.WrongEtag, Href: h, Expected: etag, Got: current}
	}

	newEtag, err := s.writeAtomic(h, it.Raw(), true)
	if err != nil {
		return "", handleIOError(h, err)
	}
	return newEtag, nil
}

func (s *Storage) Delete(ctx context.Context, h, etag string) error {
	info, err := os.Stat(s.filePath(h))
	if err != nil {
		return handleIOError(h, err)
	}
	current, err := etagFromInfo(info)
	if err != nil {
		return err
	}
	if current != etag {
		return &storage.Error{Kind: storage.WrongEtag, Href: h, Expected: etag, Got: current}
	}
	return os.Remove(s.filePath(h))
}

func (s *Storage) SetBuffered(bool) {} // no buffering: every write hits disk immediately

func (s *Storage) Flush(ctx context.Context) error { return nil }

func (s *Storage) GetMeta(ctx context.Context, key storage.MetaKey) (string, error) {
	return "", &storage.Error{Kind: storage.MetadataValueUnsupported}
}

func (s *Storage) SetMeta(ctx context.Context, key storage.MetaKey, value string) error {
	return &storage.Error{Kind: storage.MetadataValueUnsupported}
}

func (s *Storage) DeleteCollection(ctx context.Context, force bool) error {
	if !force {
		return &storage.Error{Kind: storage.BadDiscoveryConfig, Path: s.path, Err: errors.New("filesystem: refusing DeleteCollection without force")}
	}
	return os.RemoveAll(s.path)
}

var writeSeq int64

// writeAtomic writes content to a temp file in the same directory as h,
// fsyncs it, then renames it into place. With allowOverwrite false, an
// existing file at h (checked before writing and again just before the
// rename) surfaces as ItemAlreadyExisting.
func (s *Storage) writeAtomic(h, content string, allowOverwrite bool) (string, error) {
	target := s.filePath(h)
	dir := filepath.Dir(target)

	if !allowOverwrite {
		if _, err := os.Stat(target); err == nil {
			return "", &storage.Error{Kind: storage.ItemAlreadyExisting, Href: h}
		}
	}

	seq := atomic.AddInt64(&writeSeq, 1)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.tmp", filepath.Base(target), seq))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}

	if !allowOverwrite {
		if _, err := os.Stat(target); err == nil {
			os.Remove(tmp)
			return "", &storage.Error{Kind: storage.ItemAlreadyExisting, Href: h}
		}
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return "", err
	}

	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	return etagFromInfo(info)
}

func (s *Storage) runPostHook(filePath string) {
	if s.postHook == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.hookTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.postHook, filePath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		s.log.Warn().Err(err).Str("output", strings.TrimSpace(string(out))).Msg("filesystem: post-write hook failed")
	}
}

// Discover enumerates direct child directories of cfg.Path (skipping
// dot-prefixed names and entries the process cannot Stat/read) and
// returns one config per child, sharing the extension and post-hook.
func Discover(ctx context.Context, cfg config.Filesystem, log zerolog.Logger) ([]config.Filesystem, error) {
	if cfg.Collection != "" {
		return nil, &storage.Error{Kind: storage.BadDiscoveryConfig, Err: errors.New("filesystem: collection must not be set when discovering")}
	}

	entries, err := os.ReadDir(cfg.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []config.Filesystem
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			log.Debug().Str("collection", name).Msg("filesystem: skipping dotfile entry")
			continue
		}
		info, err := entry.Info()
		if err != nil {
			log.Debug().Str("collection", name).Err(err).Msg("filesystem: skipping unreadable entry")
			continue
		}
		if !info.IsDir() {
			continue
		}
		out = append(out, config.Filesystem{
			Path:       filepath.Join(cfg.Path, name),
			FileExt:    cfg.FileExt,
			PostHook:   cfg.PostHook,
			Collection: name,
		})
	}
	return out, nil
}

// Create makes a new collection directory under cfg.Path/cfg.Collection.
func Create(ctx context.Context, cfg config.Filesystem) (config.Filesystem, error) {
	path := cfg.Path
	if cfg.Collection != "" {
		path = filepath.Join(cfg.Path, cfg.Collection)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return config.Filesystem{}, err
	}
	return config.Filesystem{Path: path, FileExt: cfg.FileExt, PostHook: cfg.PostHook, Collection: cfg.Collection}, nil
}
