package profile

import (
	"crypto/sha256"
	"encoding/hex"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/wasm-jit/errors"
)

// Bump when the encoded layout changes; files with another schema are
// ignored on load.
const schemaVersion uint16 = 1

// Entry records one published module.
type Entry struct {
	Hash        string        `msgpack:"hash"`
	Module      string        `msgpack:"module"`
	Functions   []string      `msgpack:"functions"`
	CompileTime time.Duration `msgpack:"compile_time"`
	Compiles    uint64        `msgpack:"compiles"`
	LastSeen    time.Time     `msgpack:"last_seen"`
}

type file struct {
	Schema  uint16  `msgpack:"schema"`
	Entries []Entry `msgpack:"entries"`
}

// Profile is the set of modules known to be worth compiling, keyed by the
// content hash of their bytecode. Safe for concurrent use.
type Profile struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func New() *Profile {
	return &Profile{entries: make(map[string]Entry)}
}

// Key returns the map key for a bytecode hash.
func Key(hash [sha256.Size]byte) string {
	return hex.EncodeToString(hash[:])
}

// Record merges e into the profile. Repeated records for the same hash
// accumulate Compiles and keep the latest compile time.
func (p *Profile) Record(e Entry) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if e.LastSeen.IsZero() {
		e.LastSeen = time.Now()
	}
	if e.Compiles == 0 {
		e.Compiles = 1
	}
	if prev, ok := p.entries[e.Hash]; ok {
		e.Compiles += prev.Compiles
	}
	p.entries[e.Hash] = e
}

// Lookup returns the entry for hash.
func (p *Profile) Lookup(hash [sha256.Size]byte) (Entry, bool) {
	if p == nil {
		return Entry{}, false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[Key(hash)]
	return e, ok
}

// Has reports whether hash has been recorded.
func (p *Profile) Has(hash [sha256.Size]byte) bool {
	_, ok := p.Lookup(hash)
	return ok
}

func (p *Profile) Len() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Entries returns a copy of all entries ordered by module name, then hash.
func (p *Profile) Entries() []Entry {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	out := make([]Entry, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Hash < out[j].Hash
	})
	return out
}

// Save encodes the profile to w.
func (p *Profile) Save(w io.Writer) error {
	enc := msgpack.NewEncoder(w)
	if err := enc.Encode(file{Schema: schemaVersion, Entries: p.Entries()}); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Detail("encode profile").
			Cause(err).
			Build()
	}
	return nil
}

// Load decodes a profile written by Save. A profile with a different schema
// version decodes as empty.
func Load(r io.Reader) (*Profile, error) {
	var f file
	if err := msgpack.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Detail("decode profile").
			Cause(err).
			Build()
	}

	p := New()
	if f.Schema != schemaVersion {
		return p, nil
	}
	for _, e := range f.Entries {
		p.entries[e.Hash] = e
	}
	return p, nil
}

// LoadFile reads a profile from path. A missing file yields an empty
// profile.
func LoadFile(path string) (*Profile, error) {
	f, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, errors.Load("open profile "+path, err)
	}
	defer f.Close()
	return Load(f)
}

// SaveFile writes the profile to path, replacing it atomically.
func (p *Profile) SaveFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".profile-*")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := p.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
