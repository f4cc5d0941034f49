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
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/intel/mem-diag/pkg/pagemap"
	"github.com/intel/mem-diag/pkg/procfs"
	"github.com/intel/mem-diag/pkg/testutils"
)

const (
	anonFlags = 1<<KPFB_UPTODATE | 1<<KPFB_LRU | 1<<KPFB_MMAP | 1<<KPFB_ANON | 1<<KPFB_SWAPBACKED
)

func TestNames(t *testing.T) {
	tcases := []struct {
		name     string
		flags    FrameFlags
		expected []string
		str      string
	}{
		{
			name:     "none",
			expected: []string{},
		},
		{
			name:     "anonymous page",
			flags:    anonFlags,
			expected: []string{"UPTODATE", "LRU", "MMAP", "ANON", "SWAPBACKED"},
			str:      "UPTODATE|LRU|MMAP|ANON|SWAPBACKED",
		},
		{
			name:     "first and last known bits",
			flags:    1<<KPFB_LOCKED | 1<<KPFB_PGTABLE,
			expected: []string{"LOCKED", "PGTABLE"},
			str:      "LOCKED|PGTABLE",
		},
		{
			name:     "unknown bits are skipped",
			flags:    1<<40 | 1<<KPFB_ZERO_PAGE,
			expected: []string{"ZERO_PAGE"},
			str:      "ZERO_PAGE",
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.expected, tc.flags.Names()); diff != "" {
				t.Errorf("unexpected names (-expected +got):\n%s", diff)
			}
			require.Equal(t, tc.str, tc.flags.String())
		})
	}
}

func TestHas(t *testing.T) {
	f := FrameFlags(1<<KPFB_ANON | 1<<63)
	require.True(t, f.Has(KPFB_ANON))
	require.True(t, f.Has(63))
	require.False(t, f.Has(KPFB_KSM))
	require.False(t, f.Has(64))
	require.False(t, f.Has(-1))
}

func TestReadFlags(t *testing.T) {
	kpf := procfs.NewSparseTable("kpageflags", 0x1000).
		Set(0x123, anonFlags).
		Set(0x0, 1<<KPFB_BUDDY)

	tcases := []struct {
		name      string
		entry     pagemap.Entry
		kpf       *procfs.SparseTable
		flags     FrameFlags
		available bool
		opened    int
		kind      error
	}{
		{
			name:      "present page",
			entry:     pagemap.PM_PRESENT | 0x123,
			kpf:       kpf,
			flags:     anonFlags,
			available: true,
			opened:    1,
		},
		{
			name:      "present page with unset flags",
			entry:     pagemap.PM_PRESENT | 0x124,
			kpf:       kpf,
			available: true,
			opened:    1,
		},
		{
			name:  "not present",
			entry: 0,
			kpf:   kpf,
		},
		{
			name:  "swapped",
			entry: pagemap.PM_SWAP | 0x123,
			kpf:   kpf,
		},
		{
			name:  "not present without a table",
			entry: pagemap.PM_SOFT_DIRTY,
		},
		{
			name:  "present without a table",
			entry: pagemap.PM_PRESENT | 0x123,
			kind:  procfs.ErrTableUnavailable,
		},
		{
			name:   "pfn beyond table",
			entry:  pagemap.PM_PRESENT | 0x2000,
			kpf:    kpf,
			opened: 1,
			kind:   procfs.ErrSeekFailed,
		},
		{
			name:   "pfn at end of table",
			entry:  pagemap.PM_PRESENT | 0x1000,
			kpf:    kpf,
			opened: 1,
			kind:   procfs.ErrShortRead,
		},
		{
			name:   "high bits are masked out",
			entry:  pagemap.PM_PRESENT | pagemap.PM_EXCLUSIVE | pagemap.PM_SOFT_DIRTY | 0x123,
			kpf:    kpf,
			flags:  anonFlags,
			opened: 1,

			available: true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			opener := procfs.NewMemOpener()
			if tc.kpf != nil {
				opener.SetKpageflags(tc.kpf)
			}
			r := NewReader(opener)

			flags, available, err := r.ReadFlags(tc.entry)
			require.Equal(t, tc.opened, opener.Opened(), "tables opened")
			require.Equal(t, 0, opener.Leaked(), "table handle leaked")
			if tc.kind != nil {
				require.True(t, errors.Is(err, tc.kind), "expected %v, got %v", tc.kind, err)
				require.False(t, available)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.available, available)
			require.Equal(t, tc.flags, flags)
		})
	}
}

func TestReadFlagsOfAbsentPageNeedsNoPrivilege(t *testing.T) {
	r := NewReader(procfs.NewFS(t.TempDir()))

	_, available, err := r.ReadFlags(0)
	require.NoError(t, err)
	require.False(t, available)

	_, _, err = r.ReadFlags(pagemap.PM_PRESENT | 1)
	testutils.VerifyErrorIs(t, err, procfs.ErrTableUnavailable, os.ErrNotExist)
}
