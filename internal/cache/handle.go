package cache

import (
	"io"
	"net/http"
	"os"
	"sync"
)

// Stream is what Store.Get hands out: either a cached file or the live
// upstream body when the cache could not hold the resource.
type Stream interface {
	io.ReadCloser
	// Cached reports whether the stream is served from the cache directory.
	Cached() bool
	// Size returns the content length in bytes, or -1 when unknown.
	Size() int64
}

// FileHandle is a read-only cache file bound to the entry's usage token.
// While a handle is open the entry is busy and will not be evicted; if the
// file is unlinked anyway the open descriptor keeps the content readable.
type FileHandle struct {
	file  *os.File
	token *usageToken
	size  int64

	once     sync.Once
	closeErr error
}

func openHandle(path string, token *usageToken) (*FileHandle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &FileHandle{file: f, token: token, size: info.Size()}, nil
}

func (h *FileHandle) Read(p []byte) (int, error) {
	return h.file.Read(p)
}

// Close closes the descriptor and gives the usage token back. Safe to call
// more than once.
func (h *FileHandle) Close() error {
	h.once.Do(func() {
		h.closeErr = h.file.Close()
		h.token.release()
	})
	return h.closeErr
}

// Name returns the path of the cache file.
func (h *FileHandle) Name() string {
	return h.file.Name()
}

func (h *FileHandle) Size() int64 {
	return h.size
}

func (h *FileHandle) Cached() bool {
	return true
}

// PassthroughStream exposes an upstream response body that bypassed the
// cache, either because no length was declared or no space could be freed.
type PassthroughStream struct {
	body io.ReadCloser
	size int64
}

func newPassthrough(resp *http.Response) *PassthroughStream {
	return &PassthroughStream{body: resp.Body, size: resp.ContentLength}
}

func (p *PassthroughStream) Read(b []byte) (int, error) {
	return p.body.Read(b)
}

func (p *PassthroughStream) Close() error {
	return p.body.Close()
}

func (p *PassthroughStream) Size() int64 {
	return p.size
}

func (p *PassthroughStream) Cached() bool {
	return false
}
