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
	"fmt"

	"github.com/pkg/errors"
	promfs "github.com/prometheus/procfs"
)

// Mapping is a virtual memory area of a process.
type Mapping struct {
	Start    uint64
	End      uint64
	Perms    string
	Offset   int64
	Pathname string
}

// String returns the mapping in /proc/<pid>/maps notation.
func (m *Mapping) String() string {
	name := m.Pathname
	if name == "" {
		name = "[anon]"
	}
	return fmt.Sprintf("%x-%x %s %x %s", m.Start, m.End, m.Perms, m.Offset, name)
}

// Mapping returns the memory area of process pid containing addr, or nil
// if addr is not within any of them.
func (fs *FS) Mapping(pid int, addr uint64) (*Mapping, error) {
	pfs, err := promfs.NewFS(fs.root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to access %s", fs.root)
	}
	proc, err := pfs.Proc(pid)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to access process %d", pid)
	}
	maps, err := proc.ProcMaps()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read memory map of process %d", pid)
	}

	for _, m := range maps {
		if uint64(m.StartAddr) <= addr && addr < uint64(m.EndAddr) {
			return &Mapping{
				Start:    uint64(m.StartAddr),
				End:      uint64(m.EndAddr),
				Perms:    perms(m.Perms),
				Offset:   m.Offset,
				Pathname: m.Pathname,
			}, nil
		}
	}

	return nil, nil
}

func perms(p *promfs.ProcMapPermissions) string {
	if p == nil {
		return "----"
	}
	b := []byte("---p")
	if p.Read {
		b[0] = 'r'
	}
	if p.Write {
		b[1] = 'w'
	}
	if p.Execute {
		b[2] = 'x'
	}
	if p.Shared {
		b[3] = 's'
	}
	return string(b)
}
