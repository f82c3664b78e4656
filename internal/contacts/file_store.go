// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package contacts keeps the emergency contact list in a YAML file that can be
// edited by hand and is reloaded on change.
package contacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/log"
	"github.com/ManuGH/guardian/internal/validate"
)

var ErrInvalidContacts = errors.New("invalid contacts file")

const reloadDebounce = 200 * time.Millisecond

// fileFormat is the on-disk layout:
//
//	contacts:
//	  - id: mum
//	    name: Mum
//	    phone: "+4915112345678"
//	    relation: mother
type fileFormat struct {
	Contacts []model.EmergencyContact `yaml:"contacts"`
}

// FileStore serves the last valid contents of the contacts file. A broken edit
// is rejected and the previous list stays in effect.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	list   []model.EmergencyContact
	logger zerolog.Logger
}

// OpenFileStore loads path. A missing file yields an empty list.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, logger: log.WithComponent("contacts")}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Path() string { return s.path }

// List returns a copy of the current contacts in file order.
func (s *FileStore) List(context.Context) ([]model.EmergencyContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.EmergencyContact(nil), s.list...), nil
}

// Reload re-reads the file.
func (s *FileStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.swap(nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read contacts file: %w", err)
	}
	list, err := Parse(data)
	if err != nil {
		return err
	}
	s.swap(list)
	return nil
}

func (s *FileStore) swap(list []model.EmergencyContact) {
	s.mu.Lock()
	s.list = list
	s.mu.Unlock()
	s.logger.Info().
		Str(log.FieldEvent, "contacts.loaded").
		Str(log.FieldPath, s.path).
		Int("count", len(list)).
		Msg("emergency contacts loaded")
}

// Replace validates contacts and atomically replaces the file.
func (s *FileStore) Replace(ctx context.Context, contacts []model.EmergencyContact) error {
	if err := Validate(contacts); err != nil {
		return err
	}
	data, err := yaml.Marshal(fileFormat{Contacts: contacts})
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create contacts dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending contacts file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			log.FromContext(ctx).Debug().Err(err).Msg("cleanup pending contacts file")
		}
	}()
	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write contacts file: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace contacts file: %w", err)
	}

	s.swap(append([]model.EmergencyContact(nil), contacts...))
	return nil
}

// Parse strictly decodes a contacts document: unknown keys and multiple
// documents are errors.
func Parse(data []byte) ([]model.EmergencyContact, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f fileFormat
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidContacts, err)
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: multiple YAML documents", ErrInvalidContacts)
	}

	for i := range f.Contacts {
		f.Contacts[i].Phone = strings.TrimSpace(f.Contacts[i].Phone)
	}
	if err := Validate(f.Contacts); err != nil {
		return nil, err
	}
	return f.Contacts, nil
}

// Validate requires unique non-empty ids and a phone number per contact.
func Validate(contacts []model.EmergencyContact) error {
	v := validate.New()
	seen := make(map[string]bool, len(contacts))
	for i, c := range contacts {
		v.NotEmpty(validate.Index("contacts", i, "id"), c.ID)
		if c.ID != "" && seen[c.ID] {
			v.AddError(validate.Index("contacts", i, "id"), "duplicate id", c.ID)
		}
		seen[c.ID] = true
		v.NotEmpty(validate.Index("contacts", i, "phone"), c.Phone)
	}
	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContacts, err)
	}
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. The parent
// directory is watched so atomic replacements are seen too.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create contacts dir: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch contacts dir: %w", err)
	}
	s.logger.Info().Str(log.FieldEvent, "contacts.watch_started").Str(log.FieldPath, s.path).Msg("watching contacts file")

	target := filepath.Clean(s.path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str(log.FieldEvent, "contacts.watch_stopped").Msg("contacts watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			if err := s.Reload(); err != nil {
				s.logger.Error().Err(err).Str(log.FieldEvent, "contacts.reload_failed").Msg("contacts reload failed, keeping previous list")
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().Err(err).Str(log.FieldEvent, "contacts.watch_error").Msg("contacts watcher error")
		}
	}
}
