// Copyright 2021 Intel Corporation. All Rights Reserved.
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

package klogcontrol

import (
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"k8s.io/klog/v2"
)

// Control implements runtime control for klog.
type Control struct {
	flags *flag.FlagSet
}

// Our singleton klog Control instance.
var ctl *Control

// Get returns our singleton klog Control instance.
func Get() *Control {
	return ctl
}

// AddFlags registers the klog flags with the given FlagSet. Flags already
// defined in flags take precedence, including shorthands: klog's -v is
// only available as --v if -v is taken.
func (c *Control) AddFlags(flags *pflag.FlagSet) {
	c.flags.VisitAll(func(f *flag.Flag) {
		if flags.Lookup(f.Name) != nil {
			return
		}
		pf := pflag.PFlagFromGoFlag(f)
		if pf.Shorthand != "" && flags.ShorthandLookup(pf.Shorthand) != nil {
			pf.Shorthand = ""
		}
		flags.AddFlag(pf)
	})
}

// Set sets the value of the given klog flag.
func (c *Control) Set(name, value string) error {
	f := c.flags.Lookup(name)
	if f == nil {
		return klogError("unknown klog flag %q", name)
	}
	if name == "stderrthreshold" { // klog expects thresholds in ALL CAPS
		value = strings.ToUpper(value)
	}
	return f.Value.Set(value)
}

// Get returns the current value of the given klog flag.
func (c *Control) Get(name string) (string, error) {
	f := c.flags.Lookup(name)
	if f == nil {
		return "", klogError("unknown klog flag %q", name)
	}
	return f.Value.String(), nil
}

// getEnv returns a default value for the flag from the environment.
func getEnv(f *flag.Flag) (string, string, bool) {
	name := "LOGGER_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
	if value, ok := os.LookupEnv(name); ok {
		return name, value, true
	}
	return "", "", false
}

// klogError returns a package-specific formatted error.
func klogError(format string, args ...interface{}) error {
	return fmt.Errorf("klogcontrol: "+format, args...)
}

// init discovers klog flags and picks up their defaults from the environment.
func init() {
	ctl = &Control{flags: flag.NewFlagSet("klog flags", flag.ContinueOnError)}
	ctl.flags.SetOutput(ioutil.Discard)
	klog.InitFlags(ctl.flags)
	ctl.flags.VisitAll(func(f *flag.Flag) {
		if name, value, ok := getEnv(f); ok {
			if err := ctl.Set(f.Name, value); err != nil {
				klog.Errorf("klog flag %q: invalid environment default %s=%q: %v",
					f.Name, name, value, err)
			}
		}
	})
}
