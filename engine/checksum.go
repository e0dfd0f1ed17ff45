package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
)

// digestBufSize is the chunk size used when hashing files, so large files
// are never loaded into memory whole.
const digestBufSize = 64 * 1024

// DigestBytes returns the hex SHA-256 digest of b.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// DigestReader returns the hex SHA-256 digest of everything read from r
// and the number of bytes consumed.
func DigestReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// DigestFile returns the hex SHA-256 digest of the file at path and its
// size in bytes. The file is hashed in chunks.
func DigestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open for digest: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, digestBufSize)
	var total int64
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
			total += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", 0, fmt.Errorf("read for digest: %w", readErr)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), total, nil
}

// AggregateDigest computes the snapshot-level checksum over the entry set:
// the SHA-256 of each entry's relative path, content digest and size,
// concatenated in lexicographic path order. Repeated saves of unchanged
// content therefore produce the same aggregate.
func AggregateDigest(entries []FileEntry) string {
	sorted := make([]FileEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RelPath < sorted[j].RelPath })

	h := sha256.New()
	for _, e := range sorted {
		fmt.Fprintf(h, "%s\x00%s\x00%d\n", e.RelPath, e.Checksum, e.Size)
	}
	return hex.EncodeToString(h.Sum(nil))
}
