// Package singlefile implements the single-file collection backend: one
// file holding a concatenated VCALENDAR/VADDRESSBOOK stream, split into an
// in-memory ident-keyed map via the collection codec (§4.3).
package singlefile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yinjun1991/vdirstore/collection"
	"github.com/yinjun1991/vdirstore/config"
	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/storage"
)

type entry struct {
	it   *item.Item
	etag string
}

// Storage is a single file holding many items, loaded lazily and flushed
// back as one concatenated collection.
type Storage struct {
	path string

	loaded   bool
	dirty    bool
	buffered bool
	loadedAt time.Time
	items    map[string]entry
}

// New returns a Storage over path. The file is not read until the first
// operation.
func New(cfg config.Singlefile) *Storage {
	return &Storage{path: cfg.Path}
}

func (s *Storage) ensureLoaded() error {
	if s.loaded {
		return nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.items = make(map[string]entry)
			s.loaded = true
			s.loadedAt = time.Time{}
			return nil
		}
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return err
	}

	items, err := collection.Split(string(raw))
	if err != nil {
		return err
	}

	m := make(map[string]entry, len(items))
	for _, it := range items {
		ident, err := it.Ident()
		if err != nil {
			return &storage.Error{Kind: storage.ItemUnparseable, Err: err}
		}
		etag, err := it.Hash()
		if err != nil {
			return &storage.Error{Kind: storage.ItemUnparseable, Err: err}
		}
		m[ident] = entry{it: it, etag: etag}
	}

	s.items = m
	s.loaded = true
	s.loadedAt = info.ModTime()
	return nil
}

func (s *Storage) List(ctx context.Context) ([]storage.ListedItem, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	out := make([]storage.ListedItem, 0, len(s.items))
	for href, e := range s.items {
		out = append(out, storage.ListedItem{Href: href, ETag: e.etag})
	}
	return out, nil
}

func (s *Storage) Get(ctx context.Context, href string) (*item.Item, string, error) {
	if err := s.ensureLoaded(); err != nil {
		return nil, "", err
	}
	e, ok := s.items[href]
	if !ok {
		return nil, "", &storage.Error{Kind: storage.ItemNotFound, Href: href}
	}
	return e.it, e.etag, nil
}

func (s *Storage) Upload(ctx context.Context, it *item.Item) (string, string, error) {
	if err := s.ensureLoaded(); err != nil {
		return "", "", err
	}
	ident, err := it.Ident()
	if err != nil {
		return "", "", &storage.Error{Kind: storage.ItemUnparseable, Err: err}
	}
	if _, exists := s.items[ident]; exists {
		return "", "", &storage.Error{Kind: storage.ItemAlreadyExisting, Href: ident}
	}
	etag, err := it.Hash()
	if err != nil {
		return "", "", &storage.Error{Kind: storage.ItemUnparseable, Err: err}
	}

	s.items[ident] = entry{it: it, etag: etag}
	if err := s.markDirty(ctx); err != nil {
		return "", "", err
	}
	return ident, etag, nil
}

func (s *Storage) Update(ctx context.Context, href string, it *item.Item, etag string) (string, error) {
	if err := s.ensureLoaded(); err != nil {
		return "", err
	}
	current, ok := s.items[href]
	if !ok {
		return "", &storage.Error{Kind: storage.ItemNotFound, Href: href}
	}
	if current.etag != etag {
		return "", &storage.Error{Kind: storage.WrongEtag, Href: href, Expected: etag, Got: current.etag}
	}
	newEtag, err := it.Hash()
	if err != nil {
		return "", &storage.Error{Kind: storage.ItemUnparseable, Err: err}
	}

	s.items[href] = entry{it: it, etag: newEtag}
	if err := s.markDirty(ctx); err != nil {
		return "", err
	}
	return newEtag, nil
}

func (s *Storage) Delete(ctx context.Context, href, etag string) error {
	if err := s.ensureLoaded(); err != nil {
		return err
	}
	current, ok := s.items[href]
	if !ok {
		return &storage.Error{Kind: storage.ItemNotFound, Href: href}
	}
	if current.etag != etag {
		return &storage.Error{Kind: storage.WrongEtag, Href: href, Expected: etag, Got: current.etag}
	}
	delete(s.items, href)
	return s.markDirty(ctx)
}

func (s *Storage) SetBuffered(buffered bool) { s.buffered = buffered }

func (s *Storage) markDirty(ctx context.Context) error {
	s.dirty = true
	if s.buffered {
		return nil
	}
	return s.Flush(ctx)
}

func (s *Storage) Flush(ctx context.Context) error {
	if !s.dirty {
		return nil
	}

	items := make([]*item.Item, 0, len(s.items))
	hrefs := make([]string, 0, len(s.items))
	for href := range s.items {
		hrefs = append(hrefs, href)
	}
	sort.Strings(hrefs)
	for _, href := range hrefs {
		items = append(items, s.items[href].it)
	}

	serialized, err := collection.Join(items)
	if err != nil {
		return err
	}

	if err := s.atomicWriteGuarded(serialized); err != nil {
		return err
	}

	s.dirty = false
	s.loaded = false
	s.items = nil
	return nil
}

var writeSeq int64

// atomicWriteGuarded writes content via temp-file-in-same-dir + fsync +
// rename, but re-stats the original file just before the rename: if
// another process changed its mtime since load, the flush fails with
// MtimeMismatch instead of clobbering a concurrent writer.
func (s *Storage) atomicWriteGuarded(content string) error {
	dir := filepath.Dir(s.path)
	if dir == "" {
		dir = "."
	}
	seq := atomic.AddInt64(&writeSeq, 1)
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%d.tmp", filepath.Base(s.path), seq))

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if !s.loadedAt.IsZero() {
		info, err := os.Stat(s.path)
		if err == nil && !info.ModTime().Equal(s.loadedAt) {
			os.Remove(tmp)
			return &storage.Error{Kind: storage.MtimeMismatch, Path: s.path}
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			os.Remove(tmp)
			return err
		}
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Storage) GetMeta(ctx context.Context, key storage.MetaKey) (string, error) {
	return "", &storage.Error{Kind: storage.MetadataValueUnsupported}
}

func (s *Storage) SetMeta(ctx context.Context, key storage.MetaKey, value string) error {
	return &storage.Error{Kind: storage.MetadataValueUnsupported}
}

func (s *Storage) DeleteCollection(ctx context.Context, force bool) error {
	if !force {
		return &storage.Error{Kind: storage.BadDiscoveryConfig, Path: s.path, Err: errors.New("singlefile: refusing DeleteCollection without force")}
	}
	return os.Remove(s.path)
}

// Discover expands the single "%s" placeholder in cfg.Path into a glob,
// enumerating matches and recovering the collection name from the
// fixed-offset substring the placeholder occupied.
func Discover(ctx context.Context, cfg config.Singlefile) ([]config.Singlefile, error) {
	if cfg.Collection != "" {
		return nil, &storage.Error{Kind: storage.BadDiscoveryConfig, Err: errors.New("singlefile: collection must not be set when discovering")}
	}
	if strings.Contains(cfg.Path, "*") {
		return nil, &storage.Error{Kind: storage.BadDiscoveryConfig, Err: errors.New("singlefile: path must not contain a literal '*'")}
	}
	if n := strings.Count(cfg.Path, "%s"); n != 1 {
		return nil, &storage.Error{Kind: storage.BadDiscoveryConfig, Err: fmt.Errorf("singlefile: path must contain exactly one '%%s' placeholder, found %d", n)}
	}

	prefix, suffix, _ := strings.Cut(cfg.Path, "%s")
	glob := prefix + "*" + suffix
	matches, err := filepath.Glob(glob)
	if err != nil {
		return nil, err
	}

	out := make([]config.Singlefile, 0, len(matches))
	for _, m := range matches {
		if len(m) < len(prefix)+len(suffix) || !strings.HasPrefix(m, prefix) || !strings.HasSuffix(m, suffix) {
			continue
		}
		name := m[len(prefix) : len(m)-len(suffix)]
		out = append(out, config.Singlefile{Path: m, Collection: name})
	}
	return out, nil
}

// Create returns a config for a brand-new single file at the path
// produced by substituting collectionName into the "%s" placeholder of
// basePath. The file itself is created lazily on first Flush.
func Create(basePath, collectionName string) (config.Singlefile, error) {
	if strings.Count(basePath, "%s") != 1 {
		return config.Singlefile{}, &storage.Error{Kind: storage.BadDiscoveryConfig, Err: errors.New("singlefile: path must contain exactly one '%s' placeholder")}
	}
	return config.Singlefile{Path: strings.Replace(basePath, "%s", collectionName, 1), Collection: collectionName}, nil
}
