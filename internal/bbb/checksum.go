package bbb

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
)

// Supported checksum hash names. The wire protocol dispatches on either
// an explicit checksumHash parameter or the hex digest length.
const (
	SHA1   = "sha1"
	SHA256 = "sha256"
	SHA384 = "sha384"
	SHA512 = "sha512"
)

var shaByName = map[string]func() hash.Hash{
	SHA1:   sha1.New,
	SHA256: sha256.New,
	SHA384: sha512.New384,
	SHA512: sha512.New,
}

var shaByDigestLength = map[int]string{
	40:  SHA1,
	64:  SHA256,
	96:  SHA384,
	128: SHA512,
}

// AlgorithmPool restricts which checksum algorithms inbound requests may
// use. Outbound signing is fixed per cluster and bypasses the pool.
type AlgorithmPool struct {
	byName   map[string]func() hash.Hash
	byLength map[int]func() hash.Hash
}

// NewAlgorithmPool builds a pool from allowed algorithm names; unknown
// names are ignored.
func NewAlgorithmPool(allowed []string) *AlgorithmPool {
	pool := &AlgorithmPool{
		byName:   make(map[string]func() hash.Hash),
		byLength: make(map[int]func() hash.Hash),
	}
	for _, name := range allowed {
		newHash, ok := shaByName[name]
		if !ok {
			continue
		}
		pool.byName[name] = newHash
		for length, lname := range shaByDigestLength {
			if lname == name {
				pool.byLength[length] = newHash
			}
		}
	}
	return pool
}

// Select resolves the algorithm for an inbound request: the explicit
// checksumHash parameter wins, then digest-length dispatch; ok=false
// means the checksum cannot be verified.
func (p *AlgorithmPool) Select(checksumHash, checksum string) (func() hash.Hash, bool) {
	if checksumHash != "" {
		if newHash, ok := p.byName[checksumHash]; ok {
			return newHash, true
		}
	}
	if newHash, ok := p.byLength[len(checksum)]; ok {
		return newHash, true
	}
	return nil, false
}

// HashByName returns the hash constructor for a cluster's configured
// signing algorithm, defaulting to SHA-256 for unknown names.
func HashByName(name string) func() hash.Hash {
	if newHash, ok := shaByName[name]; ok {
		return newHash
	}
	return sha256.New
}

// Checksum computes hex(H(endpoint || queryString || secret)).
// The query string must be the upstream-encoded form; re-encoding would
// break checksum equality.
func Checksum(newHash func() hash.Hash, endpoint, queryString, secret string) string {
	h := newHash()
	h.Write([]byte(endpoint))
	h.Write([]byte(queryString))
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// StripChecksum removes the checksum parameter from a raw query string
// without touching any other byte of it.
func StripChecksum(rawQuery, checksum string) string {
	stripped := rawQuery
	stripped = replaceOnce(stripped, "&checksum="+checksum)
	stripped = replaceOnce(stripped, "checksum="+checksum+"&")
	stripped = replaceOnce(stripped, "checksum="+checksum)
	return stripped
}

func replaceOnce(s, segment string) string {
	for i := 0; i+len(segment) <= len(s); i++ {
		if s[i:i+len(segment)] == segment {
			return s[:i] + s[i+len(segment):]
		}
	}
	return s
}

// Verify checks an inbound checksum against every candidate secret
// (both rotation slots). Empty secrets are skipped.
func Verify(newHash func() hash.Hash, endpoint, queryString, checksum string, secrets ...string) bool {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		if Checksum(newHash, endpoint, queryString, secret) == checksum {
			return true
		}
	}
	return false
}
