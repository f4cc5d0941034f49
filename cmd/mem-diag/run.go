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
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/intel/mem-diag/pkg/config"
	"github.com/intel/mem-diag/pkg/cow"
	"github.com/intel/mem-diag/pkg/kpageflags"
	logger "github.com/intel/mem-diag/pkg/log"
	"github.com/intel/mem-diag/pkg/metrics"
	"github.com/intel/mem-diag/pkg/pagemap"
	"github.com/intel/mem-diag/pkg/procfs"
)

// options are the command line options of mem-diag.
type options struct {
	pid         string
	address     string
	example     bool
	configFile  string
	verbose     bool
	metricsFile string
}

// geteuid is swapped out by tests.
var geteuid = os.Geteuid

func parsePID(s string) (int, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || pid <= 0 {
		return 0, procfs.InvalidInput("Invalid PID: %s", s)
	}
	return pid, nil
}

func parseAddress(s string) (uint64, error) {
	hex := strings.TrimSpace(s)
	if strings.HasPrefix(hex, "0x") || strings.HasPrefix(hex, "0X") {
		hex = hex[2:]
	}
	addr, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, procfs.InvalidInput("Invalid virtual address: %s", s)
	}
	return addr, nil
}

// run runs mem-diag with parsed options and returns its exit status.
func run(opts *options, flags *pflag.FlagSet, stdout, stderr io.Writer) int {
	var (
		pid  int
		addr uint64
		err  error
	)

	single := opts.pid != "" || opts.address != "" || !opts.example
	if single {
		if opts.pid == "" || opts.address == "" {
			fmt.Fprintf(stdout, "PID and virtual address are required arguments\n")
			return 1
		}
		if pid, err = parsePID(opts.pid); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		if addr, err = parseAddress(opts.address); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return 1
		}
		if addr == 0 {
			fmt.Fprintf(stdout, "PID and virtual address are required arguments\n")
			return 1
		}
	}

	cfg, err := loadConfig(opts, flags)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	log.Debug("effective configuration:\n%s", cfg)

	if geteuid() != 0 {
		fmt.Fprintf(stdout, "Root user is required to read page flags\n")
		return 1
	}

	fs := procfs.NewFS(cfg.ProcRoot)
	resolver := pagemap.NewResolver(fs, uint64(cfg.PageSize))
	reader := kpageflags.NewReader(fs)

	status := 0
	if single {
		status = resolve(resolver, reader, pid, addr, opts.verbose, stdout, stderr)
		if status == 0 && opts.verbose {
			showMapping(fs, pid, addr, stdout)
		}
	} else {
		status = runExample(cfg, cow.NewObserver(resolver, reader), stdout, stderr)
	}

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			status = 1
		}
	}

	return status
}

// loadConfig loads the configuration file, if any, with command line overrides.
func loadConfig(opts *options, flags *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if opts.configFile != "" {
		c, err := config.Load(opts.configFile)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
	// --debug has already been applied, the configured sources are added to it
	if len(cfg.Debug) > 0 {
		if err := logger.SetDebug(cfg.DebugSpec()); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// resolve prints the page frame number and flags backing addr of pid.
func resolve(resolver *pagemap.Resolver, reader *kpageflags.Reader, pid int, addr uint64,
	verbose bool, stdout, stderr io.Writer) int {
	d, err := resolver.Resolve(pid, addr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to retrieve page frame number: %v\n", err)
		return 1
	}
	if !d.Mapped() {
		fmt.Fprintf(stdout, "Virtual address 0x%X of pid %d is not mapped (pagemap entry 0x%X)\n",
			addr, pid, uint64(d.Entry))
		return 1
	}

	flags, _, err := reader.ReadFlags(d.Entry)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to retrieve page flags: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Page Frame Number of 0x%X: 0x%X with Flags 0x%X\n", addr, d.PFN(), uint64(flags))
	log.Debug("pagemap entry %s, page flags %s", d.Entry, flags)
	if verbose {
		fmt.Fprintf(stdout, "  pagemap entry: %s\n", d.Entry)
		fmt.Fprintf(stdout, "  page flags:    %s\n", flags)
	}

	return 0
}

// showMapping prints the memory area containing addr, if it can be found.
func showMapping(fs *procfs.FS, pid int, addr uint64, stdout io.Writer) {
	m, err := fs.Mapping(pid, addr)
	switch {
	case err != nil:
		log.Warn("%v", err)
	case m == nil:
		log.Warn("0x%x is not within any memory area of pid %d", addr, pid)
	default:
		fmt.Fprintf(stdout, "  memory area:   %s\n", m)
	}
}

// runExample runs the copy-on-write example.
func runExample(cfg *config.Config, observer *cow.Observer, stdout, stderr io.Writer) int {
	scenario, err := cow.NewScenario(cow.Config{
		Initial:  cfg.Cow.Initial,
		Update:   cfg.Cow.Update,
		PageSize: cfg.PageSize,
		ProcRoot: cfg.ProcRoot,
	}, observer, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	result, err := scenario.Run()
	if result != nil {
		result.Summarize(stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "copy-on-write example failed: %v\n", err)
		return 1
	}

	return 0
}
