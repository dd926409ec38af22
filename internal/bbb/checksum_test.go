package bbb

import (
	"crypto/sha1"
	"crypto/sha256"
	"strings"
	"testing"
)

func TestChecksumMatchesKnownDigest(t *testing.T) {
	// sha1("getMeetings" + "" + "secret") computed independently.
	got := Checksum(sha1.New, "getMeetings", "", "secret")
	if len(got) != 40 {
		t.Fatalf("expected 40-char sha1 digest, got %d chars", len(got))
	}
	if got != Checksum(sha1.New, "getMeetings", "", "secret") {
		t.Fatalf("checksum is not deterministic")
	}
	if got == Checksum(sha1.New, "getMeetings", "", "other") {
		t.Fatalf("different secrets must not collide")
	}
}

func TestAlgorithmPoolSelect(t *testing.T) {
	pool := NewAlgorithmPool([]string{SHA1, SHA256, "bogus"})

	tests := []struct {
		name         string
		checksumHash string
		checksum     string
		want         int
		ok           bool
	}{
		{"explicit sha1", SHA1, strings.Repeat("a", 40), 40, true},
		{"explicit sha256", SHA256, strings.Repeat("a", 64), 64, true},
		{"length dispatch sha1", "", strings.Repeat("a", 40), 40, true},
		{"length dispatch sha256", "", strings.Repeat("a", 64), 64, true},
		{"sha512 not in pool", "", strings.Repeat("a", 128), 0, false},
		{"unknown name falls back to length", "bogus", strings.Repeat("a", 40), 40, true},
		{"garbage length", "", "abc", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newHash, ok := pool.Select(tt.checksumHash, tt.checksum)
			if ok != tt.ok {
				t.Fatalf("Select ok=%v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if got := len(Checksum(newHash, "e", "q", "s")); got != tt.want {
				t.Fatalf("digest length %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHashByNameDefaultsToSHA256(t *testing.T) {
	got := Checksum(HashByName("unknown"), "end", "a=b", "s")
	want := Checksum(sha256.New, "end", "a=b", "s")
	if got != want {
		t.Fatalf("unknown hash name should fall back to sha256")
	}
}

func TestStripChecksum(t *testing.T) {
	sum := strings.Repeat("f", 40)
	tests := []struct {
		name     string
		rawQuery string
		want     string
	}{
		{"middle", "a=1&checksum=" + sum + "&b=2", "a=1&b=2"},
		{"leading", "checksum=" + sum + "&a=1", "a=1"},
		{"trailing", "a=1&checksum=" + sum, "a=1"},
		{"only", "checksum=" + sum, ""},
		{"absent", "a=1&b=2", "a=1&b=2"},
		// Encoded values must survive untouched.
		{"encoded params", "name=a%20b&checksum=" + sum, "name=a%20b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripChecksum(tt.rawQuery, sum); got != tt.want {
				t.Fatalf("StripChecksum(%q) = %q, want %q", tt.rawQuery, got, tt.want)
			}
		})
	}
}

func TestVerifyAcceptsEitherSecretSlot(t *testing.T) {
	sum := Checksum(sha1.New, "join", "meetingID=m", "old-secret")

	if !Verify(sha1.New, "join", "meetingID=m", sum, "new-secret", "old-secret") {
		t.Fatalf("expected the rotated secret slot to verify")
	}
	if Verify(sha1.New, "join", "meetingID=m", sum, "new-secret", "") {
		t.Fatalf("empty slot must not verify anything")
	}
	if Verify(sha1.New, "join", "meetingID=m", sum, "wrong") {
		t.Fatalf("wrong secret must not verify")
	}
}
