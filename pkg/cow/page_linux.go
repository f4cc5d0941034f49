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

package cow

import (
	"bytes"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// MADV_POPULATE_WRITE populates (prefault) page tables writable,
	// breaking copy-on-write sharing. Available since Linux 5.14.
	MADV_POPULATE_WRITE = 23

	memfdName = "mem-diag-cow"
)

// faulted keeps the compiler from dropping the read that faults a page in.
var faulted byte

// SharedPage is a privately mapped page whose physical frame is shared
// copy-on-write by every process mapping the same memory file until
// one of them writes to it or unshares it.
type SharedPage struct {
	file *os.File
	data []byte
}

// NewSharedPage creates an anonymous memory file of size bytes holding
// initial and maps it privately.
func NewSharedPage(size int, initial string) (*SharedPage, error) {
	if len(initial) >= size {
		return nil, errors.Errorf("initial content (%d bytes) does not fit in %d bytes",
			len(initial), size)
	}

	fd, err := unix.MemfdCreate(memfdName, unix.MFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create memory file")
	}
	f := os.NewFile(uintptr(fd), memfdName)

	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to size memory file")
	}
	if _, err := f.WriteAt([]byte(initial), 0); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to write initial content")
	}

	p, err := MapSharedPage(f, size)
	if err != nil {
		f.Close()
		return nil, err
	}
	return p, nil
}

// MapSharedPage maps the first size bytes of a memory file privately
// and faults the page in for reading.
func MapSharedPage(f *os.File, size int) (*SharedPage, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to map %s", f.Name())
	}
	faulted = data[0]

	return &SharedPage{file: f, data: data}, nil
}

// File returns the memory file backing the page.
func (p *SharedPage) File() *os.File {
	return p.file
}

// Addr returns the virtual address of the page.
func (p *SharedPage) Addr() uint64 {
	return uint64(uintptr(unsafe.Pointer(&p.data[0])))
}

// Content returns the NUL-terminated string stored in the page.
func (p *SharedPage) Content() string {
	if end := bytes.IndexByte(p.data, 0); end >= 0 {
		return string(p.data[:end])
	}
	return string(p.data)
}

// Write stores s as a NUL-terminated string in the page.
func (p *SharedPage) Write(s string) error {
	if len(s) >= len(p.data) {
		return errors.Errorf("content (%d bytes) does not fit in %d bytes", len(s), len(p.data))
	}
	copy(p.data, s)
	p.data[len(s)] = 0
	return nil
}

// Unshare asks the kernel to give this mapping a private copy of the
// page now, without changing its content.
func (p *SharedPage) Unshare() error {
	if err := unix.Madvise(p.data, MADV_POPULATE_WRITE); err != nil {
		return errors.Wrap(err, "madvise(MADV_POPULATE_WRITE) failed")
	}
	return nil
}

// Unmap releases the mapping of the page in this process.
func (p *SharedPage) Unmap() error {
	if p.data == nil {
		return nil
	}
	if err := unix.Munmap(p.data); err != nil {
		return errors.Wrap(err, "failed to unmap page")
	}
	p.data = nil
	return nil
}

// Close unmaps the page and closes the memory file.
func (p *SharedPage) Close() error {
	err := p.Unmap()
	if cerr := p.file.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "failed to close memory file")
	}
	return err
}
