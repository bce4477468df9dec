// Package storagetest runs the storage-agnostic conformance checks of
// spec.md §8 (P1-P4 only) against any backend constructor, the way
// cyp0633-libcaldora's mock storage shares one battery of checks across
// every implementation instead of duplicating it per backend.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yinjun1991/vdirstore/item"
	"github.com/yinjun1991/vdirstore/storage"
)

const sampleEvent = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//\r\nBEGIN:VEVENT\r\nUID:evt-1\r\nDTSTAMP:20240101T000000Z\r\nSUMMARY:one\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"
const updatedEvent = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//\r\nBEGIN:VEVENT\r\nUID:evt-1\r\nDTSTAMP:20240101T000000Z\r\nSUMMARY:two\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

// Run exercises P1-P4 against a fresh storage.Storage returned by newStorage
// for each subtest.
func Run(t *testing.T, newStorage func(t *testing.T) storage.Storage) {
	t.Helper()

	t.Run("P1_UploadThenListThenGet", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		it := item.FromRaw(sampleEvent)
		wantHash, err := it.Hash()
		require.NoError(t, err)

		href, _, err := s.Upload(ctx, it)
		require.NoError(t, err)

		listed, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, listed, 1)
		assert.Equal(t, href, listed[0].Href)

		got, _, err := s.Get(ctx, href)
		require.NoError(t, err)
		gotHash, err := got.Hash()
		require.NoError(t, err)
		assert.Equal(t, wantHash, gotHash)
	})

	t.Run("P2_UploadTwiceFailsWithItemAlreadyExisting", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()
		it := item.FromRaw(sampleEvent)

		_, _, err := s.Upload(ctx, it)
		require.NoError(t, err)

		_, _, err = s.Upload(ctx, it)
		kind, ok := storage.KindOf(err)
		require.True(t, ok, "expected a *storage.Error")
		assert.Equal(t, storage.ItemAlreadyExisting, kind)
	})

	t.Run("P3_UpdateWrongEtagThenRightEtag", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		href, etag, err := s.Upload(ctx, item.FromRaw(sampleEvent))
		require.NoError(t, err)

		_, err = s.Update(ctx, href, item.FromRaw(updatedEvent), "bogus-etag")
		kind, ok := storage.KindOf(err)
		require.True(t, ok, "expected a *storage.Error for a stale etag")
		assert.Equal(t, storage.WrongEtag, kind)

		newETag, err := s.Update(ctx, href, item.FromRaw(updatedEvent), etag)
		require.NoError(t, err)
		assert.NotEqual(t, etag, newETag)

		got, _, err := s.Get(ctx, href)
		require.NoError(t, err)
		wantHash, err := item.FromRaw(updatedEvent).Hash()
		require.NoError(t, err)
		gotHash, err := got.Hash()
		require.NoError(t, err)
		assert.Equal(t, wantHash, gotHash)
	})

	t.Run("P4_DeleteWrongEtagThenRightEtag", func(t *testing.T) {
		s := newStorage(t)
		ctx := context.Background()

		href, etag, err := s.Upload(ctx, item.FromRaw(sampleEvent))
		require.NoError(t, err)

		err = s.Delete(ctx, href, "bogus-etag")
		kind, ok := storage.KindOf(err)
		require.True(t, ok, "expected a *storage.Error for a stale etag")
		assert.Equal(t, storage.WrongEtag, kind)

		require.NoError(t, s.Delete(ctx, href, etag))

		_, _, err = s.Get(ctx, href)
		kind, ok = storage.KindOf(err)
		require.True(t, ok, "expected a *storage.Error after delete")
		assert.Equal(t, storage.ItemNotFound, kind)
	})
}
