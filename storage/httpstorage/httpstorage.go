// Package httpstorage implements the read-only HTTP backend (§4.4): fetch
// one URL whose body is a concatenated collection, split it, and re-key
// every item by its content hash so hrefs stay stable even for sources
// that omit UIDs.
package httpstorage

import (
	"context"
	"io"
	"net/http"

	"github.com/yinjun1991/vdirstore/collection"
	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/storage"
	"github.com/yinjun1991/vdirstore/transport"
)

type entry struct {
	it   *item.Item
	etag string
}

// Storage is a read-only view over a single collection URL.
type Storage struct {
	client *transport.Client
	url    string

	loaded bool
	items  map[string]entry
}

// New returns a Storage that fetches url through client.
func New(client *transport.Client, url string) *Storage {
	return &Storage{client: client, url: url}
}

func (s *Storage) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	req, err := s.client.NewRequest(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req, s.url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	items, err := collection.Split(string(body))
	if err != nil {
		return err
	}

	m := make(map[string]entry, len(items))
	for _, it := range items {
		hash, err := it.Hash()
		if err != nil {
			return &storage.Error{Kind: storage.ItemUnparseable, URL: s.url, Err: err}
		}
		rekeyed, err := it.WithUID(hash)
		if err != nil {
			return &storage.Error{Kind: storage.ItemUnparseable, URL: s.url, Err: err}
		}
		ident, err := rekeyed.Ident()
		if err != nil {
			return &storage.Error{Kind: storage.ItemUnparseable, URL: s.url, Err: err}
		}
		m[ident] = entry{it: rekeyed, etag: hash}
	}

	s.items = m
	s.loaded = true
	return nil
}

func (s *Storage) List(ctx context.Context) ([]storage.ListedItem, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	out := make([]storage.ListedItem, 0, len(s.items))
	for h, e := range s.items {
		out = append(out, storage.ListedItem{Href: h, ETag: e.etag})
	}
	return out, nil
}

func (s *Storage) Get(ctx context.Context, h string) (*item.Item, string, error) {
	if err := s.ensureLoaded(ctx); err != nil {
		return nil, "", err
	}
	e, ok := s.items[h]
	if !ok {
		return nil, "", &storage.Error{Kind: storage.ItemNotFound, Href: h}
	}
	return e.it, e.etag, nil
}

func (s *Storage) Upload(ctx context.Context, it *item.Item) (string, string, error) {
	return "", "", &storage.Error{Kind: storage.ReadOnly}
}

func (s *Storage) Update(ctx context.Context, h string, it *item.Item, etag string) (string, error) {
	return "", &storage.Error{Kind: storage.ReadOnly}
}

func (s *Storage) Delete(ctx context.Context, h, etag string) error {
	return &storage.Error{Kind: storage.ReadOnly}
}

func (s *Storage) SetBuffered(bool) {}

func (s *Storage) Flush(ctx context.Context) error { return nil }

func (s *Storage) GetMeta(ctx context.Context, key storage.MetaKey) (string, error) {
	return "", &storage.Error{Kind: storage.MetadataValueUnsupported}
}

func (s *Storage) SetMeta(ctx context.Context, key storage.MetaKey, value string) error {
	return &storage.Error{Kind: storage.ReadOnly}
}

func (s *Storage) DeleteCollection(ctx context.Context, force bool) error {
	return &storage.Error{Kind: storage.ReadOnly}
}
