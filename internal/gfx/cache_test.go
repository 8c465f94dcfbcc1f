package gfx

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T) *ShaderCache {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	return NewShaderCache()
}

func TestKeyIsDeterministicAndByteSensitive(t *testing.T) {
	blob := []byte("DXBC synthetic payload for hashing")
	if Key(blob) != Key(append([]byte(nil), blob...)) {
		t.Fatal("identical blobs must hash identically")
	}
	mutated := append([]byte(nil), blob...)
	mutated[5] ^= 1
	if Key(blob) == Key(mutated) {
		t.Fatal("single-byte change must change the cache key")
	}
}

func TestStoreLookupRoundTrip(t *testing.T) {
	c := newTestCache(t)
	key := Key([]byte("some shader"))
	spirv := []byte{0x03, 0x02, 0x23, 0x07, 1, 2, 3, 4} // little-endian SPIR-V magic

	if _, ok := c.Lookup(key); ok {
		t.Fatal("lookup before store should miss")
	}
	if err := c.Store(key, spirv); err != nil {
		t.Fatalf("Store: %v", err)
	}
	got, ok := c.Lookup(key)
	if !ok {
		t.Fatal("lookup after store should hit")
	}
	if !bytes.Equal(got, spirv) {
		t.Fatalf("Lookup = %v, want %v", got, spirv)
	}
}

func TestLookupRejectsMissingMagicAndOversizedFiles(t *testing.T) {
	c := newTestCache(t)

	badKey := Key([]byte("no magic"))
	if err := c.Store(badKey, []byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := c.Lookup(badKey); ok {
		t.Fatal("payload without the SPIR-V magic must be rejected")
	}

	bigKey := Key([]byte("too big"))
	big := make([]byte, maxCacheFileSize+1)
	big[0], big[1], big[2], big[3] = 0x03, 0x02, 0x23, 0x07
	if err := c.Store(bigKey, big); err != nil {
		t.Fatalf("Store: %v", err)
	}
	if _, ok := c.Lookup(bigKey); ok {
		t.Fatal("oversized cache file must be rejected on read")
	}
}

func TestCachePathUsesSixteenHexDigits(t *testing.T) {
	c := newTestCache(t)
	p := c.pathFor(0xDEADBEEF01234567)
	if filepath.Base(p) != "deadbeef01234567.spv" {
		t.Fatalf("pathFor = %s, want deadbeef01234567.spv", filepath.Base(p))
	}
}

func TestTranslateCachedStoresAndHits(t *testing.T) {
	c := newTestCache(t)
	dxbc := buildTestVS(t)

	spirv, err := c.TranslateCached(dxbc)
	if err != nil {
		t.Fatalf("TranslateCached: %v", err)
	}
	if len(spirv) < 8 {
		t.Fatalf("translated module too small: %d bytes", len(spirv))
	}

	if _, err := os.Stat(c.pathFor(Key(dxbc))); err != nil {
		t.Fatalf("expected cache file after translation: %v", err)
	}

	again, err := c.TranslateCached(dxbc)
	if err != nil {
		t.Fatalf("second TranslateCached: %v", err)
	}
	if !bytes.Equal(spirv, again) {
		t.Fatal("cache hit returned different bytes than the original translation")
	}

	if _, err := c.TranslateCached([]byte("not a DXBC container")); err == nil {
		t.Fatal("malformed DXBC must fail translation, not silently succeed")
	}
}
