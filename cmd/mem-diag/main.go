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

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/intel/mem-diag/pkg/cow"
	logger "github.com/intel/mem-diag/pkg/log"
	"github.com/intel/mem-diag/pkg/log/klogcontrol"
	"github.com/intel/mem-diag/pkg/version"
)

var log = logger.Default()

const usageText = `Usage:
  {{.CommandPath}} -p <pid> -a <virtual-address>
  {{.CommandPath}} -e

Arguments:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
`

func main() {
	if cow.IsChild() {
		status := cow.ChildMain()
		logger.Flush()
		os.Exit(status)
	}

	status := execute(os.Args[1:], os.Stdout, os.Stderr)
	logger.Flush()
	os.Exit(status)
}

// execute parses the command line and runs mem-diag, returning its exit status.
func execute(args []string, stdout, stderr io.Writer) int {
	opts := &options{}
	status := 0

	cmd := &cobra.Command{
		Use:   "mem-diag",
		Short: "Show the physical page frame and page flags backing a virtual address.",
		Long: `Resolve the page frame number and kernel page flags backing a virtual
address of a process using /proc/<pid>/pagemap and /proc/kpageflags, or
run a copy-on-write example showing how a page shared by a parent and a
child process is unshared.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, _ []string) {
			status = run(opts, cmd.Flags(), stdout, stderr)
		},
	}
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetUsageTemplate(usageText)

	flags := cmd.Flags()
	flags.StringVarP(&opts.pid, "pid", "p", "", "Process ID.")
	flags.StringVarP(&opts.address, "address", "a", "", "Virtual address as hexadecimal.")
	flags.BoolVarP(&opts.example, "example", "e", false, "Run a copy-on-write example.")
	flags.StringVarP(&opts.configFile, "config", "c", "", "YAML configuration file.")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Show decoded pagemap entry and page flag names.")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "Write table lookup metrics to this file.")
	logger.AddFlags(flags)
	version.AddFlags(flags)
	klogcontrol.Get().AddFlags(flags)
	flags.SortFlags = false

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(stderr, "mem-diag: %v\n", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return 1
	}

	return status
}
