// Package credfile stocke l'unique Credential dans un fichier JSON.
//
// Chaque Save écrit un fichier temporaire dans le même répertoire, le
// synchronise, le renomme par-dessus la cible puis synchronise le répertoire:
// après un crash, Load lit soit l'ancien soit le nouveau contenu.
package credfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Guilhem-Bonnet/anisync/internal/domain"
	"github.com/Guilhem-Bonnet/anisync/internal/ports"
)

const (
	DefaultFileName = "credential.json"
	tempPattern     = ".credential-*.tmp"
)

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// fileFormat porte une version pour pouvoir faire évoluer le format.
type fileFormat struct {
	Version    int               `json:"version"`
	Credential domain.Credential `json:"credential"`
}

func (s *Store) Load(ctx context.Context) (*domain.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &ports.CacheError{Kind: ports.CacheIOFailure, Op: "credential read", Err: err}
	}
	var f fileFormat
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, &ports.CacheError{Kind: ports.CacheCorrupt, Op: "credential decode", Err: err}
	}
	if f.Version != 1 || !f.Credential.Valid() {
		return nil, &ports.CacheError{Kind: ports.CacheCorrupt, Op: "credential decode", Err: fmt.Errorf("unexpected content (version %d)", f.Version)}
	}
	c := f.Credential
	return &c, nil
}

func (s *Store) Save(ctx context.Context, cred domain.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cred.Valid() {
		return errors.New("credential access token is required")
	}
	b, err := json.MarshalIndent(fileFormat{Version: 1, Credential: cred}, "", "  ")
	if err != nil {
		return err
	}
	if err := s.writeAtomic(b); err != nil {
		return &ports.CacheError{Kind: ports.CacheIOFailure, Op: "credential write", Err: err}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &ports.CacheError{Kind: ports.CacheIOFailure, Op: "credential clear", Err: err}
	}
	if err := syncDir(filepath.Dir(s.path)); err != nil {
		return &ports.CacheError{Kind: ports.CacheIOFailure, Op: "credential clear", Err: err}
	}
	removeStaleTemps(filepath.Dir(s.path))
	return nil
}

func (s *Store) writeAtomic(b []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}

// removeStaleTemps nettoie les temporaires laissés par un Save interrompu.
func removeStaleTemps(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".credential-") && strings.HasSuffix(name, ".tmp") {
			_ = os.Remove(filepath.Join(dir, name))
		}
	}
}
