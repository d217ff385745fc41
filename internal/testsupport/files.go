package testsupport

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// WriteFile creates path, along with any missing parent directories, and
// fills it with size bytes of patterned data. Sizes below one byte are
// rounded up so the result is never empty.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size < 1 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	pattern := bytes.Repeat([]byte{0xA5}, 16*1024)
	if _, err := io.CopyN(f, endlessReader{pattern}, size); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// endlessReader yields its pattern forever.
type endlessReader struct {
	pattern []byte
}

func (r endlessReader) Read(p []byte) (int, error) {
	n := copy(p, r.pattern)
	return n, nil
}
