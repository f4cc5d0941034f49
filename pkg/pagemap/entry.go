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
	"fmt"
	"strings"
)

// Entry is a raw /proc/PID/pagemap record.
type Entry uint64

// Bits of a pagemap entry, see Documentation/admin-guide/mm/pagemap.rst.
const (
	PM_PFN         Entry = (1 << 55) - 1 // bits 0-54: PFN if present
	PM_SWAP_TYPE   Entry = (1 << 5) - 1  // bits 0-4: swap type if swapped
	PM_SWAP_OFFSET Entry = PM_PFN &^ PM_SWAP_TYPE
	PM_SOFT_DIRTY  Entry = 1 << 55
	PM_EXCLUSIVE   Entry = 1 << 56
	PM_UFFD_WP     Entry = 1 << 57
	PM_FILE        Entry = 1 << 61
	PM_SWAP        Entry = 1 << 62
	PM_PRESENT     Entry = 1 << 63

	pmSwapOffsetShift = 5
)

// Present returns true if the page is present in RAM.
func (e Entry) Present() bool {
	return e&PM_PRESENT != 0
}

// Swapped returns true if the page is swapped out.
func (e Entry) Swapped() bool {
	return e&PM_SWAP != 0
}

// PFN returns the page frame number of a present page, 0 otherwise.
// Readers without CAP_SYS_ADMIN see 0 for present pages, too.
func (e Entry) PFN() uint64 {
	if !e.Present() {
		return 0
	}
	return uint64(e & PM_PFN)
}

// SwapType returns the swap type of a swapped page.
func (e Entry) SwapType() uint64 {
	if !e.Swapped() {
		return 0
	}
	return uint64(e & PM_SWAP_TYPE)
}

// SwapOffset returns the swap offset of a swapped page.
func (e Entry) SwapOffset() uint64 {
	if !e.Swapped() {
		return 0
	}
	return uint64(e&PM_SWAP_OFFSET) >> pmSwapOffsetShift
}

// SoftDirty returns true if the page has been written since soft-dirty bits were cleared.
func (e Entry) SoftDirty() bool {
	return e&PM_SOFT_DIRTY != 0
}

// Exclusive returns true if the page is mapped by this process only.
func (e Entry) Exclusive() bool {
	return e&PM_EXCLUSIVE != 0
}

// File returns true if the page is file-backed or shared anonymous.
func (e Entry) File() bool {
	return e&PM_FILE != 0
}

// String returns the entry in hex followed by the names of set bits.
func (e Entry) String() string {
	bits := []string{}
	switch {
	case e.Present():
		bits = append(bits, fmt.Sprintf("present pfn=0x%x", e.PFN()))
	case e.Swapped():
		bits = append(bits, fmt.Sprintf("swapped type=%d offset=0x%x", e.SwapType(), e.SwapOffset()))
	default:
		bits = append(bits, "none")
	}
	if e.SoftDirty() {
		bits = append(bits, "soft-dirty")
	}
	if e.Exclusive() {
		bits = append(bits, "exclusive")
	}
	if e&PM_UFFD_WP != 0 {
		bits = append(bits, "uffd-wp")
	}
	if e.File() {
		bits = append(bits, "file")
	}
	return fmt.Sprintf("0x%x (%s)", uint64(e), strings.Join(bits, " "))
}
