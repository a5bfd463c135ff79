package io

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

type ChecksumWriter interface {
	io.Writer

	// Get checksum calculated from bytes having been written, in hex.
	Sum() string
}

// SHA256Writer hashes everything written through it while passing it on to dest.
//
// Models are content-addressed by this hash.
type SHA256Writer struct {
	dest   io.Writer
	sha256 hash.Hash
}

func NewSHA256Writer(dest io.Writer) ChecksumWriter {
	return &SHA256Writer{
		dest:   dest,
		sha256: sha256.New(),
	}
}

func (sw *SHA256Writer) Write(buf []byte) (int, error) {
	sw.sha256.Write(buf)
	return sw.dest.Write(buf)
}

func (sw *SHA256Writer) Sum() string {
	return hex.EncodeToString(sw.sha256.Sum(nil))
}
