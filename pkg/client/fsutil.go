package client

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cohesix/cohesix-go/pkg/backend"
)

const hashChunkBytes = 8192

// artifactHash records the digest and size of a copied or verified file.
type artifactHash struct {
	SHA256 string
	Bytes  int
}

// writeAtomic replaces path via a uniquely named temp file in the same
// directory, so readers never observe a partial write and concurrent
// writers never share a temp file.
func writeAtomic(path string, payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create parent of %s: %w", path, err)
	}
	tmp := path + ".partial-" + uuid.NewString()
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// writeSegment writes payload atomically unless the target already
// exists, making repeated pulls idempotent.
func writeSegment(path string, payload []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return writeAtomic(path, payload)
}

// hashFile digests a file in fixed chunks, enforcing the byte cap while
// reading so an oversized file is rejected without loading it whole.
// Empty files are invalid artifacts.
func hashFile(path string, maxBytes int) (artifactHash, error) {
	file, err := os.Open(path)
	if err != nil {
		return artifactHash{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()
	hash, err := digest(file, io.Discard, path, maxBytes)
	if err != nil {
		return artifactHash{}, err
	}
	return hash, nil
}

// copyWithHash streams src into dest atomically, returning the digest of
// the copied bytes.
func copyWithHash(src, dest string, maxBytes int) (artifactHash, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return artifactHash{}, fmt.Errorf("failed to create parent of %s: %w", dest, err)
	}
	reader, err := os.Open(src)
	if err != nil {
		return artifactHash{}, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer reader.Close()

	tmp := dest + ".partial-" + uuid.NewString()
	writer, err := os.Create(tmp)
	if err != nil {
		return artifactHash{}, fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	hash, err := digest(reader, writer, src, maxBytes)
	if closeErr := writer.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return artifactHash{}, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)
		return artifactHash{}, fmt.Errorf("failed to replace %s: %w", dest, err)
	}
	return hash, nil
}

func digest(reader io.Reader, writer io.Writer, name string, maxBytes int) (artifactHash, error) {
	if maxBytes <= 0 {
		maxBytes = 1 << 30
	}
	hasher := sha256.New()
	total := 0
	chunk := make([]byte, hashChunkBytes)
	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			total += n
			if total > maxBytes {
				return artifactHash{}, backend.Errorf("%s exceeds max bytes %d", name, maxBytes)
			}
			hasher.Write(chunk[:n])
			if _, err := writer.Write(chunk[:n]); err != nil {
				return artifactHash{}, fmt.Errorf("failed to copy %s: %w", name, err)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return artifactHash{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
	}
	if total == 0 {
		return artifactHash{}, backend.Errorf("%s is empty", name)
	}
	return artifactHash{SHA256: hex.EncodeToString(hasher.Sum(nil)), Bytes: total}, nil
}

// readSingleLine returns the first non-empty line of a small reference
// file, such as base_model.ref.
func readSingleLine(path string, maxBytes int) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if maxBytes > 0 && len(payload) > maxBytes {
		return "", backend.Errorf("%s exceeds max bytes %d", path, maxBytes)
	}
	for _, line := range strings.Split(string(payload), "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed, nil
		}
	}
	return "", backend.Errorf("%s is empty", path)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
