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
	"errors"
	"os"
	"runtime"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/intel/mem-diag/pkg/procfs"
)

const testPageSize = 4096

func TestEntryBits(t *testing.T) {
	tcases := []struct {
		name       string
		entry      Entry
		present    bool
		swapped    bool
		pfn        uint64
		swapType   uint64
		swapOffset uint64
		softDirty  bool
		exclusive  bool
		file       bool
	}{
		{
			name: "empty",
		},
		{
			name:    "present",
			entry:   PM_PRESENT | 0x12345,
			present: true,
			pfn:     0x12345,
		},
		{
			name:    "present with widest pfn",
			entry:   PM_PRESENT | PM_PFN,
			present: true,
			pfn:     1<<55 - 1,
		},
		{
			name:      "present exclusive soft-dirty",
			entry:     PM_PRESENT | PM_EXCLUSIVE | PM_SOFT_DIRTY | 0x42,
			present:   true,
			pfn:       0x42,
			softDirty: true,
			exclusive: true,
		},
		{
			name:    "present file page, pfn hidden",
			entry:   PM_PRESENT | PM_FILE,
			present: true,
			file:    true,
		},
		{
			name:       "swapped",
			entry:      PM_SWAP | (0x1234 << 5) | 0x3,
			swapped:    true,
			swapType:   3,
			swapOffset: 0x1234,
		},
		{
			name:  "pfn bits without present bit",
			entry: 0x12345,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.present, tc.entry.Present(), "present")
			require.Equal(t, tc.swapped, tc.entry.Swapped(), "swapped")
			require.Equal(t, tc.pfn, tc.entry.PFN(), "pfn")
			require.Equal(t, tc.swapType, tc.entry.SwapType(), "swap type")
			require.Equal(t, tc.swapOffset, tc.entry.SwapOffset(), "swap offset")
			require.Equal(t, tc.softDirty, tc.entry.SoftDirty(), "soft-dirty")
			require.Equal(t, tc.exclusive, tc.entry.Exclusive(), "exclusive")
			require.Equal(t, tc.file, tc.entry.File(), "file")
		})
	}
}

func TestEntryString(t *testing.T) {
	require.Equal(t, "0x0 (none)", Entry(0).String())
	require.Equal(t, "0x8100000000000042 (present pfn=0x42 exclusive)",
		(PM_PRESENT | PM_EXCLUSIVE | 0x42).String())
	require.Equal(t, "0x4000000000000021 (swapped type=1 offset=0x1)",
		(PM_SWAP | 0x21).String())
}

func newTestResolver() (*Resolver, *procfs.MemOpener) {
	pm := procfs.NewSparseTable("pagemap", 0x100).
		Set(0x10, uint64(PM_PRESENT|PM_EXCLUSIVE|0xabcde)).
		Set(0x11, uint64(PM_SWAP|(0x77<<5)|0x2)).
		Set(0x12, uint64(PM_PRESENT))
	opener := procfs.NewMemOpener().SetPagemap(100, pm)
	return NewResolver(opener, testPageSize), opener
}

func TestResolve(t *testing.T) {
	r, opener := newTestResolver()

	tcases := []struct {
		name    string
		pid     int
		addr    uint64
		index   uint64
		present bool
		mapped  bool
		swapped bool
		pfn     uint64
		kind    error
	}{
		{
			name:    "page aligned present",
			pid:     100,
			addr:    0x10000,
			index:   0x10,
			present: true,
			mapped:  true,
			pfn:     0xabcde,
		},
		{
			name:    "unaligned present",
			pid:     100,
			addr:    0x10fff,
			index:   0x10,
			present: true,
			mapped:  true,
			pfn:     0xabcde,
		},
		{
			name:    "swapped",
			pid:     100,
			addr:    0x11008,
			index:   0x11,
			swapped: true,
		},
		{
			name:    "present with hidden pfn",
			pid:     100,
			addr:    0x12000,
			index:   0x12,
			present: true,
		},
		{
			name:  "never touched",
			pid:   100,
			addr:  0x20000,
			index: 0x20,
		},
		{
			name: "far beyond mapped range",
			pid:  100,
			addr: 0x7fffffff0000,
			kind: procfs.ErrSeekFailed,
		},
		{
			name: "end of table",
			pid:  100,
			addr: 0x100000,
			kind: procfs.ErrShortRead,
		},
		{
			name: "no such process",
			pid:  101,
			addr: 0x10000,
			kind: procfs.ErrTableUnavailable,
		},
		{
			name: "invalid pid",
			pid:  -1,
			addr: 0x10000,
			kind: procfs.ErrInvalidInput,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := r.Resolve(tc.pid, tc.addr)
			require.Equal(t, 0, opener.Leaked(), "table handle leaked")
			if tc.kind != nil {
				require.Error(t, err)
				require.Nil(t, d)
				require.True(t, errors.Is(err, tc.kind), "expected %v, got %v", tc.kind, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.pid, d.PID)
			require.Equal(t, tc.addr, d.Addr)
			require.Equal(t, tc.index, d.Index)
			require.Equal(t, tc.present, d.Present(), "present")
			require.Equal(t, tc.mapped, d.Mapped(), "mapped")
			require.Equal(t, tc.swapped, d.Swapped(), "swapped")
			require.Equal(t, tc.pfn, d.PFN(), "pfn")
		})
	}
}

func TestResolveDoesNotReuseStaleEntries(t *testing.T) {
	r, _ := newTestResolver()

	d, err := r.Resolve(100, 0x10000)
	require.NoError(t, err)
	require.True(t, d.Mapped())

	d, err = r.Resolve(100, 0x30000)
	require.NoError(t, err)
	require.False(t, d.Present())
	require.Equal(t, uint64(0), d.PFN())
}

func TestDefaultPageSize(t *testing.T) {
	r := NewResolver(procfs.NewMemOpener(), 0)
	require.Equal(t, uint64(os.Getpagesize()), r.PageSize())
}

func TestResolveSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self/pagemap"); err != nil {
		t.Skipf("pagemap not available: %v", err)
	}

	buf := make([]byte, 4*os.Getpagesize())
	for i := range buf {
		buf[i] = byte(i)
	}
	addr := uint64(uintptr(unsafe.Pointer(&buf[os.Getpagesize()])))

	r := NewResolver(procfs.NewFS(""), 0)

	first, err := r.Resolve(os.Getpid(), addr)
	require.NoError(t, err)
	require.True(t, first.Present(), "touched page not present: %s", first.Entry)

	second, err := r.Resolve(os.Getpid(), addr)
	require.NoError(t, err)
	require.Equal(t, first.PFN(), second.PFN())

	// frame numbers are visible to those who may read kpageflags
	if f, err := os.Open("/proc/kpageflags"); err == nil {
		f.Close()
		require.True(t, first.Mapped())
		require.NotZero(t, first.PFN())
	}

	// the first pages of the address space are never mapped
	low, err := r.Resolve(os.Getpid(), 0x1000)
	if err != nil {
		require.True(t, errors.Is(err, procfs.ErrSeekFailed) || errors.Is(err, procfs.ErrShortRead), "%v", err)
	} else {
		require.False(t, low.Present())
	}

	runtime.KeepAlive(buf)
}
