// Package diskv persists the local store snapshot on disk.
package diskv

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/peterbourgon/diskv/v3"
)

// StateKey is the single key the snapshot lives under.
const StateKey = "healthsync-state"

type Persister struct {
	d        *diskv.Diskv
	basePath string
}

func NewPersister(basePath string) *Persister {
	return &Persister{
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			TempDir:           filepath.Join(basePath, ".tmp"),
			AdvancedTransform: keyToPathTransform,
			InverseTransform:  pathToKeyTransform,
			CacheSizeMax:      1024 * 1024, // 1MB
		}),
		basePath: basePath,
	}
}

// Load returns nil with no error when nothing has been saved yet.
func (p *Persister) Load() ([]byte, error) {
	if !p.d.Has(StateKey) {
		return nil, nil
	}
	blob, err := p.d.Read(StateKey)
	if err != nil {
		return nil, fmt.Errorf("diskv: read %s: %w", StateKey, err)
	}
	return blob, nil
}

func (p *Persister) Save(blob []byte) error {
	if err := p.d.Write(StateKey, blob); err != nil {
		return fmt.Errorf("diskv: write %s: %w", StateKey, err)
	}
	return nil
}

func (p *Persister) Clear() error {
	err := p.d.Erase(StateKey)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("diskv: erase %s: %w", StateKey, err)
	}
	return nil
}

func (p *Persister) BasePath() string {
	return p.basePath
}

func keyToPathTransform(s string) *diskv.PathKey {
	parts := strings.Split(s, "-")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	return fmt.Sprintf("%s-%s", strings.Join(pathKey.Path, "-"), pathKey.FileName)
}
