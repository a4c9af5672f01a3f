package blobcache

import (
	"bytes"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
)

// handleScheme prefixes every handle URL, mirroring object URLs.
const handleScheme = "blob:warmcache/"

// Handle is a page-lifetime reference to cached bytes. It is never persisted.
// After Revoke the handle no longer exposes its content.
type Handle struct {
	// URL is a unique, opaque reference ("blob:warmcache/<uuid>").
	URL string
	// Source is the resource URL the content was fetched from.
	Source string

	data    []byte
	revoked atomic.Bool
}

func newHandle(source string, data []byte) *Handle {
	return &Handle{
		URL:    handleScheme + uuid.NewString(),
		Source: source,
		data:   bytes.Clone(data),
	}
}

// Bytes returns the content, or nil once revoked. Callers must not modify it.
func (h *Handle) Bytes() []byte {
	if h.revoked.Load() {
		return nil
	}
	return h.data
}

// Reader returns a reader over the content (empty once revoked).
func (h *Handle) Reader() io.Reader {
	return bytes.NewReader(h.Bytes())
}

// Size is the content length in bytes.
func (h *Handle) Size() int { return len(h.data) }

// Revoke releases the reference.
func (h *Handle) Revoke() { h.revoked.Store(true) }

// Revoked reports whether Revoke was called.
func (h *Handle) Revoked() bool { return h.revoked.Load() }
