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

package metrics

import (
	"bytes"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTableRead(t *testing.T) {
	before := testutil.ToFloat64(tableReads.WithLabelValues("test-table", ResultOK))
	TableRead("test-table", ResultOK)
	TableRead("test-table", ResultOK)
	TableRead("test-table", ResultShortRead)

	require.Equal(t, before+2, testutil.ToFloat64(tableReads.WithLabelValues("test-table", ResultOK)))
	require.Equal(t, float64(1), testutil.ToFloat64(tableReads.WithLabelValues("test-table", ResultShortRead)))
}

func TestRegisterCollectorTwice(t *testing.T) {
	newCounter := func() (prometheus.Collector, error) {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: "test_twice_total", Help: "test"}), nil
	}
	require.NoError(t, RegisterCollector("test-twice", newCounter))
	require.Error(t, RegisterCollector("test-twice", newCounter))
}

func TestDump(t *testing.T) {
	TableRead("dump-table", ResultUnavailable)

	buf := &bytes.Buffer{}
	require.NoError(t, Dump(buf))
	require.Contains(t, buf.String(), TableReadsName)
	require.Contains(t, buf.String(), `table="dump-table"`)
	require.Contains(t, buf.String(), `result="unavailable"`)
}

func TestWriteTextfile(t *testing.T) {
	TableRead("textfile-table", ResultOK)

	path := filepath.Join(t.TempDir(), "mem-diag.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `table="textfile-table"`)
}
