// Package recording implements the raw-archive upload, rendering and
// retention lifecycle of meeting recordings.
package recording

import (
	"encoding/base32"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/DE-IBH/b3lb/internal/store"
)

// FilePath derives the storage prefix of a record set from its UUID:
// the lowercased base32 of the UUID bytes, split into `depth` directory
// levels of `width` characters with the remainder as the leaf.
func FilePath(setUUID uuid.UUID, width, depth int) string {
	b32 := strings.ToLower(base32.StdEncoding.EncodeToString(setUUID[:])[:26])

	parts := []string{"record"}
	for i := 0; i < depth; i++ {
		parts = append(parts, b32[i*width:(i+1)*width])
	}
	parts = append(parts, b32[width*depth:])
	return path.Join(parts...)
}

// RawKey is the storage key of the uploaded raw archive.
func RawKey(rs *store.RecordSet) string {
	return rs.FilePath + "/raw.tar"
}

// RecordKey is the storage key of one rendered output.
func RecordKey(rs *store.RecordSet, profile *store.RecordProfile) string {
	return rs.FilePath + "/" + profile.Name + "." + profile.FileExtension
}
