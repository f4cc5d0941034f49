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

package kpageflags

import (
	"strings"

	"github.com/pkg/errors"

	logger "github.com/intel/mem-diag/pkg/log"
	"github.com/intel/mem-diag/pkg/pagemap"
	"github.com/intel/mem-diag/pkg/procfs"
)

// FrameFlags are the kernel page flags of a physical page frame.
type FrameFlags uint64

// Bit numbers of /proc/kpageflags, see include/uapi/linux/kernel-page-flags.h.
const (
	KPFB_LOCKED = iota
	KPFB_ERROR
	KPFB_REFERENCED
	KPFB_UPTODATE
	KPFB_DIRTY
	KPFB_LRU
	KPFB_ACTIVE
	KPFB_SLAB
	KPFB_WRITEBACK
	KPFB_RECLAIM
	KPFB_BUDDY
	KPFB_MMAP
	KPFB_ANON
	KPFB_SWAPCACHE
	KPFB_SWAPBACKED
	KPFB_COMPOUND_HEAD
	KPFB_COMPOUND_TAIL
	KPFB_HUGE
	KPFB_UNEVICTABLE
	KPFB_HWPOISON
	KPFB_NOPAGE
	KPFB_KSM
	KPFB_THP
	KPFB_OFFLINE
	KPFB_ZERO_PAGE
	KPFB_IDLE
	KPFB_PGTABLE
	kpfbCount
)

var flagNames = [kpfbCount]string{
	KPFB_LOCKED:        "LOCKED",
	KPFB_ERROR:         "ERROR",
	KPFB_REFERENCED:    "REFERENCED",
	KPFB_UPTODATE:      "UPTODATE",
	KPFB_DIRTY:         "DIRTY",
	KPFB_LRU:           "LRU",
	KPFB_ACTIVE:        "ACTIVE",
	KPFB_SLAB:          "SLAB",
	KPFB_WRITEBACK:     "WRITEBACK",
	KPFB_RECLAIM:       "RECLAIM",
	KPFB_BUDDY:         "BUDDY",
	KPFB_MMAP:          "MMAP",
	KPFB_ANON:          "ANON",
	KPFB_SWAPCACHE:     "SWAPCACHE",
	KPFB_SWAPBACKED:    "SWAPBACKED",
	KPFB_COMPOUND_HEAD: "COMPOUND_HEAD",
	KPFB_COMPOUND_TAIL: "COMPOUND_TAIL",
	KPFB_HUGE:          "HUGE",
	KPFB_UNEVICTABLE:   "UNEVICTABLE",
	KPFB_HWPOISON:      "HWPOISON",
	KPFB_NOPAGE:        "NOPAGE",
	KPFB_KSM:           "KSM",
	KPFB_THP:           "THP",
	KPFB_OFFLINE:       "OFFLINE",
	KPFB_ZERO_PAGE:     "ZERO_PAGE",
	KPFB_IDLE:          "IDLE",
	KPFB_PGTABLE:       "PGTABLE",
}

// Has returns true if the flag with the given bit number is set.
func (f FrameFlags) Has(bit int) bool {
	return bit >= 0 && bit < 64 && (f>>uint(bit))&1 == 1
}

// Names returns the names of the set flags in bit order. Set bits
// without a known name are omitted.
func (f FrameFlags) Names() []string {
	names := []string{}
	for bit, name := range flagNames {
		if f.Has(bit) {
			names = append(names, name)
		}
	}
	return names
}

// String returns the names of the set flags separated by '|'.
func (f FrameFlags) String() string {
	return strings.Join(f.Names(), "|")
}

var log = logger.NewLogger("kpageflags")

// Reader reads page frame flags.
type Reader struct {
	opener procfs.Opener
}

// NewReader creates a Reader reading the kpageflags table from opener.
func NewReader(opener procfs.Opener) *Reader {
	return &Reader{opener: opener}
}

// ReadFlags returns the flags of the page frame a pagemap entry refers
// to. If the page is not present no lookup is attempted and ReadFlags
// returns false without an error.
func (r *Reader) ReadFlags(e pagemap.Entry) (FrameFlags, bool, error) {
	if !e.Present() {
		log.Debug("entry %s is not present, no flags to read", e)
		return 0, false, nil
	}
	pfn := e.PFN()

	kpf, err := r.opener.OpenKpageflags()
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to read flags of PFN 0x%x", pfn)
	}
	defer procfs.Close(kpf)

	flags, err := procfs.ReadRecord(kpf, pfn)
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to read flags of PFN 0x%x", pfn)
	}

	return FrameFlags(flags), true, nil
}
