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

package pagemap

import (
	"os"

	"github.com/pkg/errors"

	logger "github.com/intel/mem-diag/pkg/log"
	"github.com/intel/mem-diag/pkg/procfs"
)

var log = logger.NewLogger("pagemap")

// PageDescriptor describes the physical page backing a virtual address.
type PageDescriptor struct {
	PID   int    // process the address belongs to
	Addr  uint64 // virtual address
	Index uint64 // virtual page index, Addr / page size
	Entry Entry  // raw pagemap entry
}

// Present returns true if the page is present in RAM.
func (d *PageDescriptor) Present() bool {
	return d.Entry.Present()
}

// Swapped returns true if the page is swapped out.
func (d *PageDescriptor) Swapped() bool {
	return d.Entry.Swapped()
}

// PFN returns the page frame number, 0 if the page is not present.
func (d *PageDescriptor) PFN() uint64 {
	return d.Entry.PFN()
}

// Mapped returns true if the address resolves to a known page frame.
// A present page with a zero PFN is not considered mapped: the kernel
// hides PFNs from unprivileged readers.
func (d *PageDescriptor) Mapped() bool {
	return d.Entry.PFN() != 0
}

// Resolver resolves virtual addresses to page frames.
type Resolver struct {
	opener   procfs.Opener
	pageSize uint64
}

// NewResolver creates a resolver reading pagemap tables from opener.
// A zero pageSize stands for the system page size.
func NewResolver(opener procfs.Opener, pageSize uint64) *Resolver {
	if pageSize == 0 {
		pageSize = uint64(os.Getpagesize())
	}
	return &Resolver{
		opener:   opener,
		pageSize: pageSize,
	}
}

// PageSize returns the page size used for computing page indices.
func (r *Resolver) PageSize() uint64 {
	return r.pageSize
}

// Resolve looks up the pagemap entry of the page containing addr in the
// address space of process pid.
func (r *Resolver) Resolve(pid int, addr uint64) (*PageDescriptor, error) {
	if pid <= 0 {
		return nil, procfs.InvalidInput("invalid pid %d", pid)
	}

	pm, err := r.opener.OpenPagemap(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve 0x%x of pid %d", addr, pid)
	}
	defer procfs.Close(pm)

	index := addr / r.pageSize
	record, err := procfs.ReadRecord(pm, index)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resolve 0x%x of pid %d", addr, pid)
	}

	d := &PageDescriptor{
		PID:   pid,
		Addr:  addr,
		Index: index,
		Entry: Entry(record),
	}
	if !d.Mapped() {
		log.Debug("pid %d: 0x%x is not mapped, entry %s", pid, addr, d.Entry)
	}

	return d, nil
}
