// Copyright 2022 Intel Corporation. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package procfs

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// SparseTable is an in-memory table of 8-byte records. Records that
// have not been set read as zero, like unpopulated pagemap entries.
type SparseTable struct {
	sync.Mutex
	name    string
	records map[uint64]uint64
	size    int64 // extent in bytes
}

// NewSparseTable creates a table with room for count records.
func NewSparseTable(name string, count uint64) *SparseTable {
	return &SparseTable{
		name:    name,
		records: make(map[uint64]uint64),
		size:    int64(count * RecordSize),
	}
}

// Set sets the record at index, growing the table if necessary.
func (t *SparseTable) Set(index, value uint64) *SparseTable {
	t.Lock()
	defer t.Unlock()
	t.records[index] = value
	if end := int64((index + 1) * RecordSize); end > t.size {
		t.size = end
	}
	return t
}

// Truncate cuts the table to size bytes, which need not be a multiple
// of the record size.
func (t *SparseTable) Truncate(size int64) *SparseTable {
	t.Lock()
	defer t.Unlock()
	t.size = size
	return t
}

// Size returns the extent of the table in bytes.
func (t *SparseTable) Size() int64 {
	t.Lock()
	defer t.Unlock()
	return t.size
}

// Open returns a new handle to the table. onClose, if not nil, is
// called once when the handle is closed.
func (t *SparseTable) Open(onClose func()) Table {
	return &sparseHandle{table: t, onClose: onClose}
}

// byteAt returns the byte at offset, which must be within the extent.
func (t *SparseTable) byteAt(offset int64) byte {
	record := t.records[uint64(offset/RecordSize)]
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint64(buf, record)
	return buf[offset%RecordSize]
}

// sparseHandle is an open handle with its own file position.
type sparseHandle struct {
	table   *SparseTable
	pos     int64
	closed  bool
	onClose func()
}

func (h *sparseHandle) Name() string {
	return h.table.name
}

func (h *sparseHandle) Seek(offset int64, whence int) (int64, error) {
	if h.closed {
		return 0, os.ErrClosed
	}

	h.table.Lock()
	defer h.table.Unlock()

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += h.pos
	case io.SeekEnd:
		offset += h.table.size
	default:
		return h.pos, errors.Errorf("invalid whence %d", whence)
	}
	if offset < 0 || offset > h.table.size {
		return h.pos, errors.Errorf("offset 0x%x beyond table extent 0x%x", offset, h.table.size)
	}
	h.pos = offset

	return h.pos, nil
}

func (h *sparseHandle) Read(p []byte) (int, error) {
	if h.closed {
		return 0, os.ErrClosed
	}

	h.table.Lock()
	defer h.table.Unlock()

	if h.pos >= h.table.size {
		return 0, io.EOF
	}
	n := 0
	for n < len(p) && h.pos < h.table.size {
		p[n] = h.table.byteAt(h.pos)
		h.pos++
		n++
	}

	return n, nil
}

func (h *sparseHandle) Close() error {
	if h.closed {
		return os.ErrClosed
	}
	h.closed = true
	if h.onClose != nil {
		h.onClose()
	}
	return nil
}

// MemOpener opens in-memory tables, keeping track of open handles.
type MemOpener struct {
	sync.Mutex
	pagemaps   map[int]*SparseTable
	kpageflags *SparseTable
	opened     int
	closed     int
}

// NewMemOpener creates an Opener without any tables.
func NewMemOpener() *MemOpener {
	return &MemOpener{pagemaps: make(map[int]*SparseTable)}
}

// SetPagemap sets the pagemap table of a process.
func (o *MemOpener) SetPagemap(pid int, t *SparseTable) *MemOpener {
	o.Lock()
	defer o.Unlock()
	o.pagemaps[pid] = t
	return o
}

// SetKpageflags sets the page flags table.
func (o *MemOpener) SetKpageflags(t *SparseTable) *MemOpener {
	o.Lock()
	defer o.Unlock()
	o.kpageflags = t
	return o
}

// OpenPagemap opens the pagemap table of a process.
func (o *MemOpener) OpenPagemap(pid int) (Table, error) {
	o.Lock()
	t, ok := o.pagemaps[pid]
	o.Unlock()
	if !ok {
		return nil, tableError(ErrTableUnavailable, PagemapName, -1, os.ErrNotExist)
	}
	return o.open(t), nil
}

// OpenKpageflags opens the page flags table.
func (o *MemOpener) OpenKpageflags() (Table, error) {
	o.Lock()
	t := o.kpageflags
	o.Unlock()
	if t == nil {
		return nil, tableError(ErrTableUnavailable, KpageflagsName, -1, os.ErrPermission)
	}
	return o.open(t), nil
}

func (o *MemOpener) open(t *SparseTable) Table {
	o.Lock()
	defer o.Unlock()
	o.opened++
	return t.Open(func() {
		o.Lock()
		defer o.Unlock()
		o.closed++
	})
}

// Opened returns the number of handles opened so far.
func (o *MemOpener) Opened() int {
	o.Lock()
	defer o.Unlock()
	return o.opened
}

// Leaked returns the number of handles opened but not closed.
func (o *MemOpener) Leaked() int {
	o.Lock()
	defer o.Unlock()
	return o.opened - o.closed
}
