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

package config_test

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/intel/mem-diag/pkg/config"
)

func TestParse(t *testing.T) {
	type testCase struct {
		name     string
		yaml     string
		expected *config.Config
		invalid  bool
	}

	for _, tc := range []testCase{
		{
			name:     "empty",
			yaml:     "",
			expected: config.Default(),
		},
		{
			name: "full",
			yaml: `
procRoot: /host/proc
pageSize: 4096
cow:
  initial: foo
  update: bar
metricsFile: /tmp/mem-diag.prom
debug:
  - pagemap
  - kpageflags
`,
			expected: &config.Config{
				ProcRoot:    "/host/proc",
				PageSize:    4096,
				Cow:         config.Cow{Initial: "foo", Update: "bar"},
				MetricsFile: "/tmp/mem-diag.prom",
				Debug:       []string{"pagemap", "kpageflags"},
			},
		},
		{
			name: "partial cow section keeps defaults",
			yaml: `
cow:
  update: moon
`,
			expected: &config.Config{
				ProcRoot: "/proc",
				Cow:      config.Cow{Initial: "hello", Update: "moon"},
			},
		},
		{name: "unknown field", yaml: "procFS: /proc", invalid: true},
		{name: "unknown nested field", yaml: "cow:\n  initail: foo", invalid: true},
		{name: "miscased field", yaml: "procroot: /proc", invalid: true},
		{name: "upper case field", yaml: "PROCROOT: /somewhere/else\nPagesize: 8192", invalid: true},
		{name: "miscased nested field", yaml: "cow:\n  Update: moon", invalid: true},
		{name: "negative page size", yaml: "pageSize: -4096", invalid: true},
		{name: "odd page size", yaml: "pageSize: 3000", invalid: true},
		{name: "empty update", yaml: "cow:\n  update: \"\"", invalid: true},
		{name: "content too long", yaml: "pageSize: 4\ncow:\n  initial: hello", invalid: true},
		{name: "empty debug source", yaml: "debug: [\"\"]", invalid: true},
		{name: "malformed", yaml: "pageSize: [", invalid: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := config.Parse([]byte(tc.yaml))
			if tc.invalid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.expected, cfg); diff != "" {
				t.Errorf("unexpected configuration (-expected +got):\n%s", diff)
			}
		})
	}
}

func TestParseRejectsMiscasedKeys(t *testing.T) {
	_, err := config.Parse([]byte("PROCROOT: /somewhere/else\nPagesize: 8192\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown field "PROCROOT"`)

	_, err = config.Parse([]byte("cow:\n  Initial: foo\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), `unknown field "cow.Initial"`)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mem-diag.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte("debug: [\"*\"]\n"), 0644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "*", cfg.DebugSpec())

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestString(t *testing.T) {
	cfg, err := config.Parse([]byte(config.Default().String()))
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}
