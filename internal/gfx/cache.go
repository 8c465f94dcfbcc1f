// Shader cache: a content-addressed on-disk store for DXBC->SPIR-V
// translation results, grounded on runtime_ipc.go's resolveSocketPath
// (HOME-relative path resolution) and the teacher's general preference
// for small sentinel-driven POSIX file helpers over a database.
package gfx

import (
	"encoding/hex"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"
)

const (
	maxCacheFileSize = 1 << 20 // 1 MiB, per spec.md
)

// ShaderCache is the disk-backed, content-addressed cache for translated
// SPIR-V modules, one per process.
type ShaderCache struct {
	dir   string
	group singleflight.Group
	mu    sync.Mutex
}

// NewShaderCache resolves the cache directory to {home}/.citc/shader_cache,
// matching spec.md's fixed on-disk layout. It does not fail if the
// directory cannot be created yet; that is deferred to the first Store.
func NewShaderCache() *ShaderCache {
	home := os.Getenv("HOME")
	dir := filepath.Join(home, ".citc", "shader_cache")
	return &ShaderCache{dir: dir}
}

// Key computes the FNV-1a-64 hash of a DXBC blob, the cache's lookup key.
func Key(dxbc []byte) uint64 {
	h := fnv.New64a()
	h.Write(dxbc)
	return h.Sum64()
}

func (c *ShaderCache) pathFor(key uint64) string {
	return filepath.Join(c.dir, hex.EncodeToString(keyBytes(key))+".spv")
}

func keyBytes(key uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[7-i] = byte(key >> uint(i*8))
	}
	return b
}

var errCacheMiss = errors.New("gfx: shader cache miss")

// Lookup reads the cached SPIR-V for key, rejecting oversized files and
// files missing the SPIR-V magic, per spec.md's "Shader cache" section.
func (c *ShaderCache) Lookup(key uint64) ([]byte, bool) {
	info, err := os.Stat(c.pathFor(key))
	if err != nil || info.Size() > maxCacheFileSize {
		return nil, false
	}
	data, err := os.ReadFile(c.pathFor(key))
	if err != nil || len(data) < 4 {
		return nil, false
	}
	if uint32(data[0])|uint32(data[1])<<8|uint32(data[2])<<16|uint32(data[3])<<24 != spirvMagic {
		return nil, false
	}
	return data, true
}

// Store writes spirv under key, overwriting any existing entry. Writes
// go to a temp file first and are renamed into place so a reader never
// observes a partial file, matching spec.md's "writes atomically by
// overwrite".
func (c *ShaderCache) Store(key uint64, spirv []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}
	final := c.pathFor(key)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, spirv, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// TranslateCached looks up dxbc's translation, falling back to
// ParseDXBC+Translate on a miss and storing the result. Concurrent
// requests for the same bytecode hash are deduped through singleflight,
// per SPEC_FULL.md's domain-stack wiring for golang.org/x/sync.
func (c *ShaderCache) TranslateCached(dxbc []byte) ([]byte, error) {
	key := Key(dxbc)
	if spirv, ok := c.Lookup(key); ok {
		return spirv, nil
	}
	v, err, _ := c.group.Do(hex.EncodeToString(keyBytes(key)), func() (interface{}, error) {
		if spirv, ok := c.Lookup(key); ok {
			return spirv, nil
		}
		ps, err := ParseDXBC(dxbc)
		if err != nil {
			return nil, err
		}
		spirv, err := Translate(ps)
		if err != nil {
			return nil, err
		}
		if err := c.Store(key, spirv); err != nil {
			return nil, err
		}
		return spirv, nil
	})
	if err != nil {
		return nil, err
	}
	spirv, ok := v.([]byte)
	if !ok {
		return nil, errCacheMiss
	}
	return spirv, nil
}
