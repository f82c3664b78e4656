// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package testkit

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/guardian/internal/domain/emergency/model"
	"github.com/ManuGH/guardian/internal/domain/emergency/ports"
)

// StaticContacts is a ContactStore over an in-memory list.
type StaticContacts struct {
	mu    sync.Mutex
	list  []model.EmergencyContact
	err   error
	reads atomic.Int32
}

func NewStaticContacts(contacts ...model.EmergencyContact) *StaticContacts {
	return &StaticContacts{list: contacts}
}

// Set replaces the list; in-flight dispatches keep the copy they already read.
func (s *StaticContacts) Set(contacts ...model.EmergencyContact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = contacts
}

func (s *StaticContacts) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StaticContacts) List(context.Context) ([]model.EmergencyContact, error) {
	s.reads.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]model.EmergencyContact(nil), s.list...), nil
}

// Reads returns how many times List was called.
func (s *StaticContacts) Reads() int {
	return int(s.reads.Load())
}

// Contacts builds n contacts with ids c1..cn and phones +1555000000i.
func Contacts(n int) []model.EmergencyContact {
	out := make([]model.EmergencyContact, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.EmergencyContact{
			ID:    "c" + strconv.Itoa(i),
			Name:  "Contact " + strconv.Itoa(i),
			Phone: "+1555000000" + strconv.Itoa(i),
		})
	}
	return out
}

// FixedLocation resolves to Coords after Delay, or fails with Err.
type FixedLocation struct {
	Coords model.Coordinates
	Delay  time.Duration
	Err    error
}

func (l FixedLocation) Current(ctx context.Context) (model.Coordinates, error) {
	if l.Delay > 0 {
		timer := time.NewTimer(l.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return model.Coordinates{}, ctx.Err()
		}
	}
	if l.Err != nil {
		return model.Coordinates{}, l.Err
	}
	return l.Coords, nil
}

// NeverLocation ignores its context and never answers until Stop is called,
// which lets tests check that a stuck provider does not hold up dispatch.
type NeverLocation struct {
	stop chan struct{}
	once sync.Once
}

func NewNeverLocation() *NeverLocation {
	return &NeverLocation{stop: make(chan struct{})}
}

func (l *NeverLocation) Current(context.Context) (model.Coordinates, error) {
	<-l.stop
	return model.Coordinates{}, ports.ErrLocationUnavailable
}

// Stop unblocks every pending Current call.
func (l *NeverLocation) Stop() {
	l.once.Do(func() { close(l.stop) })
}

// RecordingLog is an EventLog that keeps entries in memory and can be told to fail.
type RecordingLog struct {
	mu      sync.Mutex
	entries []model.LogEntry
	fail    error
}

func NewRecordingLog() *RecordingLog {
	return &RecordingLog{}
}

func (l *RecordingLog) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fail = err
}

func (l *RecordingLog) Append(_ context.Context, entry model.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.entries = append(l.entries, entry)
	return nil
}

func (l *RecordingLog) Entries() []model.LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LogEntry(nil), l.entries...)
}

var (
	_ ports.ContactStore     = (*StaticContacts)(nil)
	_ ports.LocationProvider = FixedLocation{}
	_ ports.LocationProvider = (*NeverLocation)(nil)
	_ ports.EventLog         = (*RecordingLog)(nil)
)
