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
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	model "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	logger "github.com/intel/mem-diag/pkg/log"
)

const (
	// Namespace is the common prefix of our metrics.
	Namespace = "mem_diag"

	// TableReadsName is the name of the table read counter.
	TableReadsName = Namespace + "_table_reads_total"

	// Results of table accesses.
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultSeekFailed  = "seek_failed"
	ResultShortRead   = "short_read"
	ResultReadFailed  = "read_failed"
)

var (
	lock                  sync.Mutex
	builtInCollectors     = make(map[string]InitCollector)
	registeredCollectors  = []prometheus.Collector{}
	initializedCollectors = make(map[string]struct{})
	log                   = logger.NewLogger("metrics")

	tableReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "table_reads_total",
			Help:      "Number of pagemap and kpageflags table accesses by result.",
		},
		[]string{"table", "result"},
	)
)

// InitCollector is the type for functions that initialize collectors.
type InitCollector func() (prometheus.Collector, error)

// RegisterCollector registers the named prometheus.Collector for metrics collection.
func RegisterCollector(name string, init InitCollector) error {
	lock.Lock()
	defer lock.Unlock()

	log.Debug("registering collector %s...", name)

	if _, found := builtInCollectors[name]; found {
		return metricsError("collector %s already registered", name)
	}

	builtInCollectors[name] = init

	return nil
}

// NewMetricGatherer creates a new prometheus.Gatherer with all registered collectors.
func NewMetricGatherer() (prometheus.Gatherer, error) {
	lock.Lock()
	defer lock.Unlock()

	reg := prometheus.NewPedanticRegistry()

	names := make([]string, 0, len(builtInCollectors))
	for name := range builtInCollectors {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, ok := initializedCollectors[name]; ok {
			continue
		}

		c, err := builtInCollectors[name]()
		if err != nil {
			log.Error("failed to initialize collector '%s': %v. Skipping it.", name, err)
			continue
		}
		registeredCollectors = append(registeredCollectors, c)
		initializedCollectors[name] = struct{}{}
	}

	for _, c := range registeredCollectors {
		if err := reg.Register(c); err != nil {
			return nil, metricsError("failed to register collector: %v", err)
		}
	}

	return reg, nil
}

// TableRead counts an access to the named table with the given result.
func TableRead(table, result string) {
	tableReads.WithLabelValues(table, result).Inc()
}

// Dump gathers all registered metrics and writes them in text format.
func Dump(w io.Writer) error {
	g, err := NewMetricGatherer()
	if err != nil {
		return err
	}
	families, err := g.Gather()
	if err != nil {
		return metricsError("failed to gather metrics: %v", err)
	}
	return writeFamilies(w, families)
}

// WriteTextfile dumps all metrics into a file, replacing it atomically.
func WriteTextfile(path string) error {
	tmp, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return metricsError("failed to create %s: %v", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Dump(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return metricsError("failed to write %s: %v", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return metricsError("failed to set mode of %s: %v", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return metricsError("failed to replace %s: %v", path, err)
	}

	log.Debug("metrics written to %s", path)
	return nil
}

func writeFamilies(w io.Writer, families []*model.MetricFamily) error {
	for _, f := range families {
		if _, err := expfmt.MetricFamilyToText(w, f); err != nil {
			return metricsError("failed to encode %s: %v", f.GetName(), err)
		}
	}
	return nil
}

// metricsError returns a new formatted error specific to metrics-processing.
func metricsError(format string, args ...interface{}) error {
	return fmt.Errorf("metrics: "+format, args...)
}

func init() {
	err := RegisterCollector("tables", func() (prometheus.Collector, error) {
		return tableReads, nil
	})
	if err != nil {
		log.Error("failed to register table read collector: %v", err)
	}
}
