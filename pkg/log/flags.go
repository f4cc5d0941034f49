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

package log

import (
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// srcmap tracks debugging settings for sources.
type srcmap map[string]bool

// enabled checks if a source is enabled, honoring the '*' wildcard.
func (m srcmap) enabled(source string) bool {
	if state, ok := m[source]; ok {
		return state
	}
	return m["*"]
}

// parse updates entries of srcmap by parsing the given value.
//
// The syntax is a comma-separated list of source names, each optionally
// prefixed with 'on:' or 'off:'. A prefix sticks until the next one, so
// 'on:*,off:cow,pagemap' enables debugging for all but cow and pagemap.
func (m srcmap) parse(value string) error {
	prev := ""
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		state, src := "", entry
		if statesrc := strings.Split(entry, ":"); len(statesrc) == 2 {
			state, src = statesrc[0], statesrc[1]
		} else if len(statesrc) > 2 {
			return loggerError("invalid state spec '%s' in source map", entry)
		}

		if state != "" {
			prev = state
		} else {
			state = prev
			if state == "" {
				state = "on"
			}
		}
		if src == "all" {
			src = "*"
		}

		switch strings.ToLower(state) {
		case "on", "true", "enable", "enabled":
			m[src] = true
		case "off", "false", "disable", "disabled":
			m[src] = false
		default:
			return loggerError("invalid state '%s' in source map", state)
		}
	}
	return nil
}

// String returns a string representation of the srcmap.
func (m srcmap) String() string {
	on, off := []string{}, []string{}
	for src, state := range m {
		if state {
			on = append(on, src)
		} else {
			off = append(off, src)
		}
	}
	sort.Strings(on)
	sort.Strings(off)

	switch {
	case len(off) == 0:
		return "on:" + strings.Join(on, ",")
	case len(on) == 0:
		return "off:" + strings.Join(off, ",")
	}
	return "on:" + strings.Join(on, ",") + ",off:" + strings.Join(off, ",")
}

// SetDebug enables or disables debugging for sources by parsing spec.
func SetDebug(spec string) error {
	logging.Lock()
	defer logging.Unlock()

	sm := make(srcmap)
	for src, state := range logging.debug {
		sm[src] = state
	}
	if err := sm.parse(spec); err != nil {
		return err
	}
	logging.update(sm)

	return nil
}

// debugFlag hooks debug source configuration into command line parsing.
type debugFlag struct{}

func (debugFlag) Set(value string) error {
	return SetDebug(value)
}

func (debugFlag) String() string {
	logging.RLock()
	defer logging.RUnlock()
	if len(logging.debug) == 0 {
		return ""
	}
	return logging.debug.String()
}

func (debugFlag) Type() string {
	return "sources"
}

// AddFlags registers our command line flags with the given FlagSet.
func AddFlags(flags *pflag.FlagSet) {
	flags.Var(debugFlag{}, "debug",
		"enable debug messages for comma-separated log sources, '*' for all")
}
