// Package memory is an in-process spreadsheet mirror used when no Google
// spreadsheet is configured and in tests.
package memory

import (
	"context"
	"sync"

	"finbot/internal/core"
	ports "finbot/internal/sheets"
)

type Store struct {
	mu   sync.Mutex
	rows [][]string
}

var _ ports.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendTransaction stores tx unless a row with its id exists.
func (s *Store) AppendTransaction(_ context.Context, tx core.Transaction) error {
	row := ports.Row(tx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(row[0]) >= 0 {
		return nil
	}
	s.rows = append(s.rows, row)
	return nil
}

// RemoveTransaction drops the row holding id.
func (s *Store) RemoveTransaction(_ context.Context, id int64) (bool, error) {
	key := ports.Row(core.Transaction{ID: id})[0]
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(key)
	if i < 0 {
		return false, nil
	}
	s.rows = append(s.rows[:i], s.rows[i+1:]...)
	return true, nil
}

// Rows returns a copy of the mirrored rows, header excluded.
func (s *Store) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	for i, r := range s.rows {
		out[i] = append([]string(nil), r...)
	}
	return out
}

func (s *Store) indexOf(id string) int {
	for i, r := range s.rows {
		if r[0] == id {
			return i
		}
	}
	return -1
}
