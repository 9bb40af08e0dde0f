// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/sharedscene/lib/clock"
	"github.com/bureau-foundation/sharedscene/lib/codec"
	"github.com/bureau-foundation/sharedscene/lib/participant"
)

// Compile-time interface check.
var _ Signaler = (*DirectorySignaler)(nil)

// DefaultPresenceTTL is how long a presence record stays current
// without being refreshed.
const DefaultPresenceTTL = 10 * time.Second

const signalFileSuffix = ".cbor"

// DirectorySignaler implements Signaler with CBOR files under a shared
// directory. Every participant pointed at the same directory sees the
// same session:
//
//	<root>/presence/<participant>.cbor
//	<root>/offers/<target>/<offerer>.cbor
//	<root>/answers/<offerer>/<answerer>.cbor
//
// Files are replaced atomically (write to a temporary name, then
// rename) so a concurrent reader never sees a partial record.
type DirectorySignaler struct {
	root  string
	clock clock.Clock
	ttl   time.Duration

	mu       sync.Mutex
	seen     seenFilter
	lastTime time.Time
}

// presenceRecord is the content of a presence file.
type presenceRecord struct {
	ID          participant.ID `cbor:"id"`
	RefreshedAt int64          `cbor:"refreshed_at"` // Unix nanoseconds
}

// signalRecord is the content of an offer or answer file.
type signalRecord struct {
	SDP         string `cbor:"sdp"`
	PublishedAt int64  `cbor:"published_at"` // Unix nanoseconds
}

// NewDirectorySignaler creates the directory layout under root if it
// does not exist. A zero ttl selects DefaultPresenceTTL. A nil clock
// selects the real clock.
func NewDirectorySignaler(root string, ttl time.Duration, clk clock.Clock) (*DirectorySignaler, error) {
	if root == "" {
		return nil, errors.New("signal directory path is empty")
	}
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	for _, sub := range []string{"presence", "offers", "answers"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("creating signal directory: %w", err)
		}
	}
	return &DirectorySignaler{
		root:  root,
		clock: clk,
		ttl:   ttl,
		seen:  make(seenFilter),
	}, nil
}

func (s *DirectorySignaler) Announce(_ context.Context, id participant.ID) error {
	if err := validFileComponent(id); err != nil {
		return err
	}
	record := presenceRecord{ID: id, RefreshedAt: s.clock.Now().UnixNano()}
	return writeRecord(filepath.Join(s.root, "presence", string(id)+signalFileSuffix), record)
}

func (s *DirectorySignaler) Withdraw(_ context.Context, id participant.ID) error {
	if err := validFileComponent(id); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, "presence", string(id)+signalFileSuffix))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("withdrawing presence for %s: %w", id, err)
	}
	return nil
}

// Participants lists current presence records. Records older than the
// TTL and files that fail to decode are skipped.
func (s *DirectorySignaler) Participants(context.Context) ([]participant.ID, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "presence"))
	if err != nil {
		return nil, fmt.Errorf("listing presence: %w", err)
	}
	cutoff := s.clock.Now().Add(-s.ttl).UnixNano()

	var ids []participant.ID
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), signalFileSuffix) {
			continue
		}
		var record presenceRecord
		if err := readRecord(filepath.Join(s.root, "presence", entry.Name()), &record); err != nil {
			continue
		}
		if record.ID.IsZero() || record.RefreshedAt < cutoff {
			continue
		}
		ids = append(ids, record.ID)
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *DirectorySignaler) PublishOffer(_ context.Context, offerer, target participant.ID, sdp string) error {
	return s.publish(filepath.Join(s.root, "offers"), target, offerer, sdp)
}

func (s *DirectorySignaler) PublishAnswer(_ context.Context, offerer, answerer participant.ID, sdp string) error {
	return s.publish(filepath.Join(s.root, "answers"), offerer, answerer, sdp)
}

// publish writes <base>/<inbox>/<sender>.cbor.
func (s *DirectorySignaler) publish(base string, inbox, sender participant.ID, sdp string) error {
	if err := validFileComponent(inbox); err != nil {
		return err
	}
	if err := validFileComponent(sender); err != nil {
		return err
	}
	directory := filepath.Join(base, string(inbox))
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("creating signal inbox: %w", err)
	}
	record := signalRecord{SDP: sdp, PublishedAt: s.nextTimestamp().UnixNano()}
	return writeRecord(filepath.Join(directory, string(sender)+signalFileSuffix), record)
}

func (s *DirectorySignaler) PollOffers(_ context.Context, local participant.ID) ([]SignalMessage, error) {
	return s.poll("offers", local)
}

func (s *DirectorySignaler) PollAnswers(_ context.Context, local participant.ID) ([]SignalMessage, error) {
	return s.poll("answers", local)
}

func (s *DirectorySignaler) poll(kind string, local participant.ID) ([]SignalMessage, error) {
	if err := validFileComponent(local); err != nil {
		return nil, err
	}
	directory := filepath.Join(s.root, kind, string(local))
	entries, err := os.ReadDir(directory)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", kind, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, signalFileSuffix) {
			continue
		}
		peer := participant.ID(strings.TrimSuffix(name, signalFileSuffix))
		var record signalRecord
		if err := readRecord(filepath.Join(directory, name), &record); err != nil {
			continue
		}
		timestamp := time.Unix(0, record.PublishedAt).UTC()
		if !s.seen.fresh(kind+":"+string(local)+":"+string(peer), timestamp) {
			continue
		}
		messages = append(messages, SignalMessage{Peer: peer, SDP: record.SDP, Timestamp: timestamp})
	}
	return messages, nil
}

func (s *DirectorySignaler) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()
	if !now.After(s.lastTime) {
		now = s.lastTime.Add(time.Nanosecond)
	}
	s.lastTime = now
	return now
}

// validFileComponent rejects IDs that cannot be used as a single path
// element.
func validFileComponent(id participant.ID) error {
	name := string(id)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("participant ID %q is not usable as a signal file name", name)
	}
	return nil
}

func readRecord(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return codec.Unmarshal(data, v)
}

// writeRecord encodes v and atomically replaces path with it. The
// temporary file starts with a dot so directory scans skip it.
func writeRecord(path string, v any) error {
	data, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding signal record: %w", err)
	}

	file, err := os.CreateTemp(filepath.Dir(path), ".signal-*")
	if err != nil {
		return fmt.Errorf("creating temporary signal file: %w", err)
	}
	temporaryPath := file.Name()

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary signal file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary signal file: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("replacing signal file: %w", err)
	}
	return nil
}
