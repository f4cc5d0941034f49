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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

const testMaps = `00400000-00452000 r-xp 00000000 08:02 173521 /usr/bin/dbus-daemon
00651000-00652000 rw-p 00051000 08:02 173521 /usr/bin/dbus-daemon
7f5e9f7b3000-7f5e9f7b6000 rw-s 00000000 00:05 1234 /memfd:mem-diag-cow (deleted)
7fff5fe00000-7fff5fe21000 rw-p 00000000 00:00 0
`

func TestMapping(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "42"), 0755))
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, "42", "maps"), []byte(testMaps), 0644))
	fs := NewFS(root)

	m, err := fs.Mapping(42, 0x400123)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, "400000-452000 r-xp 0 /usr/bin/dbus-daemon", m.String())

	m, err = fs.Mapping(42, 0x7fff5fe20fff)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, "rw-p", m.Perms)
	require.Contains(t, m.String(), "[anon]")

	m, err = fs.Mapping(42, 0x7f5e9f7b3000)
	require.NoError(t, err)
	require.Equal(t, "rw-s", m.Perms)

	m, err = fs.Mapping(42, 0x452000)
	require.NoError(t, err)
	require.Nil(t, m)

	_, err = fs.Mapping(43, 0x400000)
	require.Error(t, err)
}

var mapped uint64 = 1

func TestMappingSelf(t *testing.T) {
	addr := uint64(uintptr(unsafe.Pointer(&mapped)))
	m, err := NewFS("").Mapping(os.Getpid(), addr)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.True(t, m.Start <= addr && addr < m.End)
	require.Equal(t, byte('r'), m.Perms[0])
}
