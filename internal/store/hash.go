package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// HashBytes returns the hex sha256 of a design file's content.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ComputeDesignHash computes a deterministic hash over the loaded design
// files and the settings that influence elaboration. File order does not
// affect the hash; content and settings do.
func ComputeDesignHash(files []*File, settings ...string) string {
	h := sha256.New()

	type fileKey struct{ path, hash string }
	keys := make([]fileKey, len(files))
	for i, f := range files {
		keys[i] = fileKey{f.Path, f.Hash}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].path < keys[j].path })
	for _, k := range keys {
		fmt.Fprintf(h, "file:%s:%s\n", k.path, k.hash)
	}
	for _, s := range settings {
		fmt.Fprintf(h, "setting:%s\n", s)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
