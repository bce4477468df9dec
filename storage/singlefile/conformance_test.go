package singlefile

import (
	"testing"

	"github.com/yinjun1991/vdirstore/storage"
	"github.com/yinjun1991/vdirstore/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return newTestFile(t, "")
	})
}
