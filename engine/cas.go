package engine

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const blobExt = ".zst"

// CAS is the content-addressable blob store. Blobs are zstd-compressed
// files named by their content checksum, fanned out over two-hex-digit
// subdirectories. A given byte content is stored at most once; writes go
// through a temp file and an atomic rename, so concurrent puts of the same
// content cannot corrupt the store.
type CAS struct {
	root string
}

// NewCAS creates a CAS rooted at dir, creating it if needed.
func NewCAS(dir string) (*CAS, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &CAS{root: dir}, nil
}

func (c *CAS) blobPath(checksum string) string {
	return filepath.Join(c.root, checksum[:2], checksum+blobExt)
}

// Put stores the file at src and returns its checksum and uncompressed
// size. If a blob with the same checksum already exists the write is
// skipped (dedup) — repeated puts of identical content are no-ops.
func (c *CAS) Put(src string) (string, int64, error) {
	checksum, size, err := DigestFile(src)
	if err != nil {
		return "", 0, err
	}

	if c.Exists(checksum) {
		if logEnabled(slog.LevelDebug) {
			sub("cas").Debug("put dedup", "checksum", short(checksum))
		}
		return checksum, size, nil
	}

	f, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open blob source: %w", err)
	}
	defer f.Close()

	if err := c.write(checksum, f); err != nil {
		return "", 0, err
	}
	sub("cas").Debug("put", "checksum", short(checksum), "size", size)
	return checksum, size, nil
}

// PutBytes stores b and returns its checksum.
func (c *CAS) PutBytes(b []byte) (string, error) {
	checksum := DigestBytes(b)
	if c.Exists(checksum) {
		return checksum, nil
	}
	if err := c.write(checksum, bytes.NewReader(b)); err != nil {
		return "", err
	}
	return checksum, nil
}

// write compresses r into the blob slot for checksum, temp-then-rename.
func (c *CAS) write(checksum string, r io.Reader) error {
	dest := c.blobPath(checksum)
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create blob tmp: %w", err)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("zstd writer: %w", err)
	}

	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("compress blob: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close blob tmp: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit blob: %w", err)
	}
	return nil
}

// Exists reports whether a blob with the given checksum is stored.
func (c *CAS) Exists(checksum string) bool {
	if len(checksum) < 2 {
		return false
	}
	_, err := os.Stat(c.blobPath(checksum))
	return err == nil
}

// Get returns the decompressed content of the blob.
func (c *CAS) Get(checksum string) ([]byte, error) {
	r, err := c.Open(checksum)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// Open returns a streaming reader over the decompressed blob content.
func (c *CAS) Open(checksum string) (io.ReadCloser, error) {
	if len(checksum) < 2 {
		return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, checksum)
	}
	f, err := os.Open(c.blobPath(checksum))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrBlobNotFound, checksum)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &blobReader{dec: dec, f: f}, nil
}

// Peek returns up to limit bytes of decompressed blob content.
func (c *CAS) Peek(checksum string, limit int) ([]byte, error) {
	r, err := c.Open(checksum)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, limit)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("peek blob: %w", err)
	}
	return buf[:n], nil
}

// WriteTo decompresses the blob into dest, creating parent directories and
// going through a temp file plus atomic rename. Mode and mtime are applied
// to the restored file; zero values leave defaults in place.
func (c *CAS) WriteTo(checksum, dest string, mode os.FileMode, mtime time.Time) error {
	r, err := c.Open(checksum)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create restore dir: %w", err)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create restore tmp: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("decompress blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close restore tmp: %w", err)
	}

	if mode != 0 {
		if err := os.Chmod(tmp, mode.Perm()); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("chmod restored file: %w", err)
		}
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(tmp, time.Now(), mtime); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("chtimes restored file: %w", err)
		}
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit restored file: %w", err)
	}
	return nil
}

// Delete removes the blob. Missing blobs are not an error.
func (c *CAS) Delete(checksum string) error {
	if len(checksum) < 2 {
		return nil
	}
	err := os.Remove(c.blobPath(checksum))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// List returns the checksums of every stored blob.
func (c *CAS) List() ([]string, error) {
	var sums []string
	err := filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), blobExt) {
			return nil
		}
		sums = append(sums, strings.TrimSuffix(d.Name(), blobExt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	return sums, nil
}

// CleanupTemp removes stale *.tmp files left by interrupted writes.
// Call once at startup; returns the number of files removed.
func (c *CAS) CleanupTemp() int {
	l := sub("cas")
	removed := 0
	filepath.WalkDir(c.root, func(path string, d os.DirEntry, err error) error { //nolint:errcheck
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), ".tmp") {
			if rmErr := os.Remove(path); rmErr != nil {
				l.Warn("failed to remove temp file", "path", path, "err", rmErr)
			} else {
				removed++
			}
		}
		return nil
	})
	if removed > 0 {
		l.Info("removed stale temp files", "count", removed)
	}
	return removed
}

// blobReader pairs a zstd decoder with its underlying file.
type blobReader struct {
	dec *zstd.Decoder
	f   *os.File
}

func (b *blobReader) Read(p []byte) (int, error) { return b.dec.Read(p) }

func (b *blobReader) Close() error {
	b.dec.Close()
	return b.f.Close()
}

// short truncates a checksum for log output.
func short(checksum string) string {
	if len(checksum) > 8 {
		return checksum[:8]
	}
	return checksum
}
