package state

import (
	"errors"
	"sort"

	"yieldsplit/storage"
)

type journalEntry struct {
	value   []byte
	deleted bool
}

// Journal buffers writes over a backing database until Commit. Reads see the
// buffered writes first. A journal is not safe for concurrent use; the host
// serializes transactions.
type Journal struct {
	db     storage.Database
	writes map[string]journalEntry
	closed bool
}

// NewJournal opens a write overlay on db.
func NewJournal(db storage.Database) *Journal {
	return &Journal{db: db, writes: make(map[string]journalEntry)}
}

var errJournalClosed = errors.New("state: journal already committed or discarded")

// Get returns the buffered value for key or falls through to the database.
func (j *Journal) Get(key []byte) ([]byte, error) {
	if entry, ok := j.writes[string(key)]; ok {
		if entry.deleted {
			return nil, storage.ErrNotFound
		}
		return append([]byte(nil), entry.value...), nil
	}
	return j.db.Get(key)
}

// Put buffers a write.
func (j *Journal) Put(key []byte, value []byte) error {
	if j.closed {
		return errJournalClosed
	}
	j.writes[string(key)] = journalEntry{value: append([]byte(nil), value...)}
	return nil
}

// Delete buffers a removal.
func (j *Journal) Delete(key []byte) error {
	if j.closed {
		return errJournalClosed
	}
	j.writes[string(key)] = journalEntry{deleted: true}
	return nil
}

// Close satisfies storage.Database. It discards pending writes.
func (j *Journal) Close() {
	j.Discard()
}

// Len reports the number of buffered writes.
func (j *Journal) Len() int {
	return len(j.writes)
}

// Writes returns the buffered mutations ordered by key.
func (j *Journal) Writes() []storage.Write {
	keys := make([]string, 0, len(j.writes))
	for k := range j.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]storage.Write, 0, len(keys))
	for _, k := range keys {
		entry := j.writes[k]
		w := storage.Write{Key: []byte(k)}
		if !entry.deleted {
			w.Value = entry.value
		}
		out = append(out, w)
	}
	return out
}

// Commit flushes the buffered writes to the database, as one batch when the
// backend supports it.
func (j *Journal) Commit() error {
	if j.closed {
		return errJournalClosed
	}
	writes := j.Writes()
	j.closed = true
	j.writes = nil
	if len(writes) == 0 {
		return nil
	}
	if batcher, ok := j.db.(storage.Batcher); ok {
		return batcher.WriteBatch(writes)
	}
	for _, w := range writes {
		var err error
		if w.Value == nil {
			err = j.db.Delete(w.Key)
		} else {
			err = j.db.Put(w.Key, w.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every buffered write.
func (j *Journal) Discard() {
	j.closed = true
	j.writes = nil
}
