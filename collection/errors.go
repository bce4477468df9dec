package collection

import "github.com/yinjun1991/vdirstore/storage"

func unexpectedVobject(got string) error {
	return &storage.Error{Kind: storage.UnexpectedVobject, Got: got}
}

func unexpectedVobjectVersion(expected, got string) error {
	return &storage.Error{Kind: storage.UnexpectedVobjectVersion, Expected: expected, Got: got}
}
