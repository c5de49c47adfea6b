package cos

import (
	"io"
	"os"
	"path/filepath"

	"github.com/teris-io/shortid"
)

// CreateTmpFile creates a uniquely-suffixed spooled file under dir for one
// task's payload. The caller owns the returned file until it is handed off or
// removed.
func CreateTmpFile(dir, prefix string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	sid, err := shortid.Generate()
	if err != nil {
		return nil, err
	}
	name := filepath.Join(dir, prefix+"."+sid+".tmp")
	return os.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_EXCL, 0o644)
}

// RemoveTmpFile deletes a task-owned temp file on a best-effort basis;
// callers never treat a missing file as an error (orphan cleanup may have
// already removed it).
func RemoveTmpFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

// CopyChunked copies src into dst chunkSize bytes at a time.
func CopyChunked(dst io.Writer, src io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	return io.CopyBuffer(dst, src, buf)
}
