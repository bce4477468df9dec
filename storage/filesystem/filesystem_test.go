package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yinjun1991/vdirstore/config"
	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/logging"
	"github.com/yinjun1991/vdirstore/storage"
)

const sampleEvent = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//\r\nBEGIN:VEVENT\r\nUID:evt-1\r\nDTSTAMP:20240101T000000Z\r\nSUMMARY:Hi\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	return New(config.Filesystem{Path: dir, FileExt: ".ics"}, logging.Nop())
}

func TestUploadGetRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	h, etag, err := s.Upload(ctx, item.FromRaw(sampleEvent))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if etag == "" {
		t.Fatalf("expected non-empty etag")
	}
	if filepath.Ext(h) != ".ics" {
		t.Fatalf("href %q missing configured extension", h)
	}

	got, gotEtag, err := s.Get(ctx, h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if gotEtag != etag {
		t.Fatalf("etag mismatch: %q != %q", gotEtag, etag)
	}
	if got.Raw() != sampleEvent {
		t.Fatalf("raw mismatch")
	}
}

func TestUploadCollisionFails(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	h, _, err := s.Upload(ctx, item.FromRaw(sampleEvent))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	// The file at h already exists from the Upload above; rewrite it
	// directly, then write to the same href with overwrite disallowed so
	// the collision is hit inside writeAtomic itself.
	if err := os.WriteFile(filepath.Join(s.path, h), []byte(sampleEvent), 0o644); err != nil {
		t.Fatalf("seed collision: %v", err)
	}
	if _, err := s.writeAtomic(h, sampleEvent, false); err == nil {
		t.Fatalf("expected collision error")
	} else if kind, ok := storage.KindOf(err); !ok || kind != storage.ItemAlreadyExisting {
		t.Fatalf("KindOf = %v, %v, want ItemAlreadyExisting", kind, ok)
	}
}

func TestUpdateWrongEtag(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	h, _, err := s.Upload(ctx, item.FromRaw(sampleEvent))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	_, err = s.Update(ctx, h, item.FromRaw(sampleEvent), "bogus-etag")
	if kind, ok := storage.KindOf(err); !ok || kind != storage.WrongEtag {
		t.Fatalf("KindOf = %v, %v, want WrongEtag", kind, ok)
	}
}

func TestDeleteThenGetNotFound(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	h, etag, err := s.Upload(ctx, item.FromRaw(sampleEvent))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := s.Delete(ctx, h, etag); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := s.Get(ctx, h); err == nil {
		t.Fatalf("expected ItemNotFound after delete")
	} else if kind, ok := storage.KindOf(err); !ok || kind != storage.ItemNotFound {
		t.Fatalf("KindOf = %v, %v, want ItemNotFound", kind, ok)
	}
}

func TestListSkipsOtherExtensions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	if _, _, err := s.Upload(ctx, item.FromRaw(sampleEvent)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := os.WriteFile(filepath.Join(s.path, "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("seed unrelated file: %v", err)
	}

	listed, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("List returned %d entries, want 1", len(listed))
	}
}

func TestDeleteCollectionRequiresForce(t *testing.T) {
	s := newTestStorage(t)
	if err := s.DeleteCollection(context.Background(), false); err == nil {
		t.Fatalf("expected error without force")
	} else if kind, ok := storage.KindOf(err); !ok || kind != storage.BadDiscoveryConfig {
		t.Fatalf("KindOf = %v, %v, want BadDiscoveryConfig", kind, ok)
	}
	if _, err := os.Stat(s.path); err != nil {
		t.Fatalf("directory should still exist: %v", err)
	}
}

func TestDiscoverSkipsDotfiles(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"personal", ".git", "work"} {
		if err := os.MkdirAll(filepath.Join(root, name), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
	}

	cfgs, err := Discover(context.Background(), config.Filesystem{Path: root, FileExt: ".ics"}, logging.Nop())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("Discover returned %d configs, want 2", len(cfgs))
	}
	for _, c := range cfgs {
		if c.Collection == ".git" {
			t.Fatalf("Discover should have skipped dotfile directory")
		}
	}
}
