// Copyright 2019 Intel Corporation. All Rights Reserved.
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

package config

import (
	"io/ioutil"
	"reflect"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/intel/mem-diag/pkg/procfs"
)

const (
	// DefaultInitial is the default content of the shared page.
	DefaultInitial = "hello"
	// DefaultUpdate is the default content written by the child.
	DefaultUpdate = "world"
)

// Config is the configuration of mem-diag.
type Config struct {
	// ProcRoot is the root of the pagemap and kpageflags tables.
	ProcRoot string `json:"procRoot,omitempty"`
	// PageSize is the page size used for indexing pagemap, 0 to query the system.
	PageSize int `json:"pageSize,omitempty"`
	// Cow configures the copy-on-write scenario.
	Cow Cow `json:"cow,omitempty"`
	// MetricsFile is where table lookup counters are written, if set.
	MetricsFile string `json:"metricsFile,omitempty"`
	// Debug lists the log sources to enable debug messages for.
	Debug []string `json:"debug,omitempty"`
}

// Cow is the configuration of the copy-on-write scenario.
type Cow struct {
	// Initial is written to the page before the child starts.
	Initial string `json:"initial,omitempty"`
	// Update is written to the page by the child.
	Update string `json:"update,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ProcRoot: procfs.DefaultRoot,
		Cow: Cow{
			Initial: DefaultInitial,
			Update:  DefaultUpdate,
		},
	}
}

// Load reads the configuration from a YAML file. Settings missing from
// the file keep their default values.
func Load(path string) (*Config, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration file")
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid configuration file %s", path)
	}
	return cfg, nil
}

// Parse parses YAML configuration data on top of the defaults.
// Unknown fields, including ones differing from a known field only
// in case, are rejected.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.UnmarshalStrict(raw, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	if err := checkFields(doc, reflect.TypeOf(Config{}), ""); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkFields rejects keys of doc not exactly matching the json tag of a
// field of t. JSON decoding alone matches keys ignoring case.
func checkFields(doc map[string]interface{}, t reflect.Type, prefix string) error {
	fields := map[string]reflect.Type{}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}
		fields[name] = f.Type
	}

	keys := make([]string, 0, len(doc))
	for key := range doc {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ft, ok := fields[key]
		if !ok {
			return errors.Errorf("unknown field %q", prefix+key)
		}
		if nested, ok := doc[key].(map[string]interface{}); ok && ft.Kind() == reflect.Struct {
			if err := checkFields(nested, ft, prefix+key+"."); err != nil {
				return err
			}
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.ProcRoot == "" {
		c.ProcRoot = procfs.DefaultRoot
	}
	if c.PageSize < 0 || c.PageSize&(c.PageSize-1) != 0 {
		return errors.Errorf("invalid pageSize %d, must be 0 or a power of 2", c.PageSize)
	}
	if c.Cow.Initial == "" || c.Cow.Update == "" {
		return errors.Errorf("cow.initial and cow.update must not be empty")
	}
	if c.PageSize > 0 {
		for _, s := range []string{c.Cow.Initial, c.Cow.Update} {
			if len(s) >= c.PageSize {
				return errors.Errorf("cow content %q does not fit in a page of %d bytes",
					s, c.PageSize)
			}
		}
	}
	for _, src := range c.Debug {
		if strings.TrimSpace(src) == "" {
			return errors.Errorf("empty debug source")
		}
	}
	return nil
}

// DebugSpec returns the debug sources in the format of the --debug option.
func (c *Config) DebugSpec() string {
	return strings.Join(c.Debug, ",")
}

// String returns the configuration in YAML.
func (c *Config) String() string {
	raw, err := yaml.Marshal(c)
	if err != nil {
		return "<invalid configuration: " + err.Error() + ">"
	}
	return string(raw)
}
