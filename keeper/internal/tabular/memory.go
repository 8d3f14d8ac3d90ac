package tabular

import (
	"context"
	"sync"
)

// MemoryBook is an in-process Book. It backs dry runs and tests.
type MemoryBook struct {
	mu   sync.Mutex
	tabs map[string]*MemoryTab
}

// NewMemoryBook returns an empty book.
func NewMemoryBook() *MemoryBook {
	return &MemoryBook{tabs: make(map[string]*MemoryTab)}
}

func (b *MemoryBook) Tab(_ context.Context, name string, header []string) (Store, error) {
	return b.Open(name, header), nil
}

// Open is Tab without the interface return type.
func (b *MemoryBook) Open(name string, header []string) *MemoryTab {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tabs[name]; ok {
		return t
	}
	t := &MemoryTab{header: CopyRow(header)}
	b.tabs[name] = t
	return t
}

// Get returns the named tab or nil.
func (b *MemoryBook) Get(name string) *MemoryTab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tabs[name]
}

// MemoryTab is a Store held in a slice.
type MemoryTab struct {
	mu     sync.Mutex
	header []string
	rows   [][]string

	// Fault, when set, runs before every operation; a non-nil return is
	// handed back to the caller and the operation is skipped.
	Fault func(op string) error
}

// Header returns the tab's header row.
func (t *MemoryTab) Header() []string { return CopyRow(t.header) }

// Rows returns a snapshot of the body.
func (t *MemoryTab) Rows() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return copyRows(t.rows)
}

func (t *MemoryTab) fault(op string) error {
	if t.Fault == nil {
		return nil
	}
	return t.Fault(op)
}

func (t *MemoryTab) ReadAll(_ context.Context) ([][]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fault("read"); err != nil {
		return nil, err
	}
	return copyRows(t.rows), nil
}

func (t *MemoryTab) Append(_ context.Context, row []string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fault("append"); err != nil {
		return 0, err
	}
	t.rows = append(t.rows, CopyRow(row))
	return len(t.rows) - 1, nil
}

func (t *MemoryTab) InsertAt(_ context.Context, pos int, row []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fault("insert"); err != nil {
		return err
	}
	if err := CheckInsert(pos, len(t.rows)); err != nil {
		return err
	}
	t.rows = append(t.rows, nil)
	copy(t.rows[pos+1:], t.rows[pos:])
	t.rows[pos] = CopyRow(row)
	return nil
}

func (t *MemoryTab) UpdateRange(_ context.Context, pos int, rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fault("update"); err != nil {
		return err
	}
	if err := CheckSpan(pos, len(rows), len(t.rows)); err != nil {
		return err
	}
	for i, r := range rows {
		t.rows[pos+i] = CopyRow(r)
	}
	return nil
}

func (t *MemoryTab) DeleteAt(_ context.Context, pos int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fault("delete"); err != nil {
		return err
	}
	if err := CheckSpan(pos, 1, len(t.rows)); err != nil {
		return err
	}
	t.rows = append(t.rows[:pos], t.rows[pos+1:]...)
	return nil
}

func (t *MemoryTab) ReplaceAll(_ context.Context, rows [][]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.fault("replace"); err != nil {
		return err
	}
	t.rows = copyRows(rows)
	return nil
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = CopyRow(r)
	}
	return out
}
