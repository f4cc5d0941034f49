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

//
// This module lets one tag built binaries with version metadata.
//
// Currently two pieces of metadata tracked/provided:
//   - Version: version number, by convention one provided by 'git describe'
//   - Build:   build id, by convention the git SHA1 the binary has been built from.
//
// To enable automatic versioning metadata for your binary, you need to
//
//   1) register the '--version' option with AddFlags()
//   2) add the linker flags to override the dummy package variables, for instance:
//        LDFLAGS=-ldflags \
//          "-X=github.com/intel/mem-diag/pkg/version.Version=<version> \
//           -X=github.com/intel/mem-diag/pkg/version.Build=<build-id>"
//

package version

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"
)

// Default values of variables we'll override with the linker.
var (
	// Version is our version as given by 'git describe'.
	Version = "unknown"
	// Build is the SHA1 of the repository we've been built from.
	Build = "unknown"
)

// exit is swapped out by tests.
var exit = os.Exit

// PrintVersionInfo prints version information about this binary.
func PrintVersionInfo(w io.Writer) {
	fmt.Fprintf(w, "%s version information:\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(w, "  - version: %s\n", Version)
	fmt.Fprintf(w, "  - build:   %s\n", Build)
}

// version hooks into pflag.Value.Set of --version during command line parsing.
type version struct {
	out io.Writer
}

// Set prints version information and exits if value is true.
func (v *version) Set(value string) error {
	print, err := strconv.ParseBool(value)
	if err != nil {
		return err
	}
	if print {
		PrintVersionInfo(v.out)
		exit(0)
	}

	return nil
}

// String is our dummy pflag.Value stringification function.
func (*version) String() string {
	return "false"
}

// Type returns the type of the option for usage messages.
func (*version) Type() string {
	return "bool"
}

// AddFlags puts in place a '--version' command line option in flags.
func AddFlags(flags *pflag.FlagSet) {
	f := flags.VarPF(&version{out: os.Stdout}, "version", "",
		"Print version information about "+filepath.Base(os.Args[0]))
	f.NoOptDefVal = "true"
}
