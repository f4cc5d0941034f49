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
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	logger "github.com/intel/mem-diag/pkg/log"
	"github.com/intel/mem-diag/pkg/metrics"
)

const (
	// RecordSize is the size of a pagemap or kpageflags record in bytes.
	RecordSize = 8
	// DefaultRoot is where procfs is normally mounted.
	DefaultRoot = "/proc"
	// PagemapName is the name of the per-process pagemap table.
	PagemapName = "pagemap"
	// KpageflagsName is the name of the system-wide page flags table.
	KpageflagsName = "kpageflags"
)

var log = logger.NewLogger("procfs")

// Table is a random-access table of fixed size little-endian records.
// *os.File implements Table.
type Table interface {
	io.ReadSeeker
	io.Closer
	Name() string
}

// Opener opens the tables needed to resolve virtual addresses.
type Opener interface {
	// OpenPagemap opens the pagemap table of a process.
	OpenPagemap(pid int) (Table, error)
	// OpenKpageflags opens the system-wide page flags table.
	OpenKpageflags() (Table, error)
}

// FS opens tables from a procfs mount.
type FS struct {
	root string
}

// NewFS returns an Opener for procfs mounted at root, DefaultRoot if empty.
func NewFS(root string) *FS {
	if root == "" {
		root = DefaultRoot
	}
	return &FS{root: root}
}

// Root returns the root directory of the opener.
func (fs *FS) Root() string {
	return fs.root
}

// PagemapPath returns the path of the pagemap table of a process.
func (fs *FS) PagemapPath(pid int) string {
	return filepath.Join(fs.root, strconv.Itoa(pid), PagemapName)
}

// KpageflagsPath returns the path of the page flags table.
func (fs *FS) KpageflagsPath() string {
	return filepath.Join(fs.root, KpageflagsName)
}

// OpenPagemap opens /proc/PID/pagemap.
func (fs *FS) OpenPagemap(pid int) (Table, error) {
	return openFile(fs.PagemapPath(pid))
}

// OpenKpageflags opens /proc/kpageflags.
func (fs *FS) OpenKpageflags() (Table, error) {
	return openFile(fs.KpageflagsPath())
}

func openFile(path string) (Table, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		metrics.TableRead(filepath.Base(path), metrics.ResultUnavailable)
		return nil, tableError(ErrTableUnavailable, path, -1, err)
	}
	log.Debug("opened %s", path)
	return f, nil
}

// ReadRecord reads the record at index from a table. It fails with
// ErrSeekFailed if the table cannot be positioned exactly at the record,
// ErrShortRead if less than a full record is available, and ErrReadFailed
// on other I/O errors.
func ReadRecord(t Table, index uint64) (uint64, error) {
	name := t.Name()
	table := filepath.Base(name)

	if index > math.MaxInt64/RecordSize {
		metrics.TableRead(table, metrics.ResultSeekFailed)
		return 0, tableError(ErrSeekFailed, name, -1,
			errors.Errorf("record index 0x%x out of range", index))
	}
	offset := int64(index * RecordSize)

	pos, err := t.Seek(offset, io.SeekStart)
	if err != nil {
		metrics.TableRead(table, metrics.ResultSeekFailed)
		return 0, tableError(ErrSeekFailed, name, offset, err)
	}
	if pos != offset {
		metrics.TableRead(table, metrics.ResultSeekFailed)
		return 0, tableError(ErrSeekFailed, name, offset,
			errors.Errorf("landed at offset 0x%x", pos))
	}

	buf := make([]byte, RecordSize)
	n, err := io.ReadFull(t, buf)
	switch {
	case err == io.EOF || err == io.ErrUnexpectedEOF:
		metrics.TableRead(table, metrics.ResultShortRead)
		return 0, tableError(ErrShortRead, name, offset,
			errors.Errorf("could only read %d of %d bytes", n, RecordSize))
	case err != nil:
		metrics.TableRead(table, metrics.ResultReadFailed)
		return 0, tableError(ErrReadFailed, name, offset, err)
	}

	metrics.TableRead(table, metrics.ResultOK)
	record := binary.LittleEndian.Uint64(buf)
	log.Debug("%s[0x%x] = 0x%x", name, index, record)

	return record, nil
}

// Close closes a table, logging but otherwise ignoring any errors.
func Close(t Table) {
	if err := t.Close(); err != nil {
		log.Warn("failed to close %s: %v", t.Name(), err)
	}
}
