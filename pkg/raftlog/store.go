// Package raftlog stores hashicorp/raft log entries in a segmented journal.
package raftlog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/downfa11-org/journal/pkg/config"
	"github.com/downfa11-org/journal/pkg/journal"
	"github.com/downfa11-org/journal/util"
	"github.com/hashicorp/raft"
)

// LogStore implements raft.LogStore on top of a Journal. Raft indices map
// one to one onto journal indices.
//
// Prefix deletes only drop whole segments, so the store keeps a logical
// first index and hides entries below it.
type LogStore struct {
	mu      sync.Mutex
	journal *journal.Journal[*raft.Log]
	reader  *journal.Reader[*raft.Log]
	first   uint64
}

var _ raft.LogStore = (*LogStore)(nil)

// Open opens the journal described by cfg as a raft log store.
func Open(cfg *config.Config) (*LogStore, error) {
	j, err := journal.Open[*raft.Log](cfg, journal.MsgpackCodec[*raft.Log]{})
	if err != nil {
		return nil, err
	}
	return New(j), nil
}

// New wraps an open journal. The store takes ownership of j.
func New(j *journal.Journal[*raft.Log]) *LogStore {
	return &LogStore{journal: j, first: j.FirstIndex()}
}

func (s *LogStore) Journal() *journal.Journal[*raft.Log] {
	return s.journal
}

func (s *LogStore) FirstIndex() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, last := s.bounds()
	if first > last {
		return 0, nil
	}
	return first, nil
}

func (s *LogStore) LastIndex() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, last := s.bounds()
	if first > last {
		return 0, nil
	}
	return last, nil
}

// bounds returns the visible index range; first > last when empty.
func (s *LogStore) bounds() (uint64, uint64) {
	return max(s.first, s.journal.FirstIndex()), s.journal.LastIndex()
}

func (s *LogStore) GetLog(index uint64, log *raft.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, last := s.bounds()
	if index < first || index > last {
		return raft.ErrLogNotFound
	}

	e, err := s.read(index)
	if errors.Is(err, journal.ErrNoSuchEntry) {
		// the reader may sit on a segment removed by compaction
		if err = s.reader.ResetTo(index); err == nil {
			e, err = s.reader.Next()
		}
	}
	if errors.Is(err, journal.ErrNoSuchEntry) {
		return raft.ErrLogNotFound
	}
	if err != nil {
		return err
	}
	if e.Index != index {
		return fmt.Errorf("read index %d while looking for %d", e.Index, index)
	}

	*log = *e.Entry
	log.Index = index
	return nil
}

// read returns index through the shared reader, seeking only when the
// reader is not already positioned in front of it.
func (s *LogStore) read(index uint64) (journal.Indexed[*raft.Log], error) {
	if s.reader == nil {
		r, err := s.journal.OpenReader(index)
		if err != nil {
			return journal.Indexed[*raft.Log]{}, err
		}
		s.reader = r
	} else if s.reader.NextIndex() != index || s.reader.Truncated() {
		if err := s.reader.ResetTo(index); err != nil {
			return journal.Indexed[*raft.Log]{}, err
		}
	}
	return s.reader.Next()
}

func (s *LogStore) StoreLog(log *raft.Log) error {
	return s.StoreLogs([]*raft.Log{log})
}

// StoreLogs appends logs in order. A log at or below the last index
// replaces the conflicting suffix.
func (s *LogStore) StoreLogs(logs []*raft.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, log := range logs {
		if err := s.store(log); err != nil {
			return err
		}
	}
	return s.journal.Flush()
}

func (s *LogStore) store(log *raft.Log) error {
	w := s.journal.Writer()
	first, last := s.bounds()

	switch {
	case first > last && log.Index != w.NextIndex():
		if err := w.Reset(log.Index); err != nil {
			return err
		}
		s.first = log.Index
	case log.Index < first:
		return fmt.Errorf("%w: log %d precedes first index %d", journal.ErrIndexOutOfRange, log.Index, first)
	case log.Index <= last:
		util.Debug("raftlog: replacing logs %d..%d", log.Index, last)
		if err := w.Truncate(log.Index - 1); err != nil {
			return err
		}
	case log.Index > last+1:
		return fmt.Errorf("%w: log %d leaves a gap after %d", journal.ErrIndexMismatch, log.Index, last)
	}

	if first > last {
		s.first = log.Index
	}
	if _, err := w.AppendIndexed(journal.Indexed[*raft.Log]{Index: log.Index, Entry: log}); err != nil {
		return fmt.Errorf("store log %d: %w", log.Index, err)
	}
	return nil
}

// DeleteRange removes logs min..max inclusive. Raft only deletes a prefix
// after a snapshot or a suffix on conflict.
func (s *LogStore) DeleteRange(min, max uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	first, last := s.bounds()
	if first > last || max < first || min > last || min > max {
		return nil
	}

	switch {
	case min <= first && max >= last:
		if err := s.journal.Writer().Reset(max + 1); err != nil {
			return err
		}
		s.first = max + 1
	case min <= first:
		s.first = max + 1
		if err := s.journal.Compact(max + 1); err != nil {
			return err
		}
	case max >= last:
		if err := s.journal.Truncate(min - 1); err != nil {
			return err
		}
	default:
		return fmt.Errorf("cannot delete logs %d..%d from the middle of %d..%d", min, max, first, last)
	}

	util.Debug("raftlog: deleted logs %d..%d", min, max)
	return nil
}

func (s *LogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}
	return s.journal.Close()
}
