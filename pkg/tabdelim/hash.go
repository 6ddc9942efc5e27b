package tabdelim

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// HashDir returns a SHA-256 over the relation files in dir, in relation
// order. Two directories with identical fact files hash the same regardless
// of their location.
func HashDir(dir string) (string, error) {
	h := sha256.New()
	for _, name := range Relations() {
		path := filepath.Join(dir, name+Extension)
		file, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", name, err)
		}
		fmt.Fprintf(h, "%s\x00", name)
		_, err = io.Copy(h, file)
		file.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", path, err)
		}
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
