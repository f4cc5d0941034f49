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

package cow

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	logger "github.com/intel/mem-diag/pkg/log"
	"github.com/intel/mem-diag/pkg/procfs"
)

const (
	// ChildEnv marks a process as the child actor of the scenario. Its
	// value is the JSON encoded Config of the scenario.
	ChildEnv = "MEM_DIAG_COW_CHILD"

	// DefaultInitial is the content written before the child starts.
	DefaultInitial = "hello"
	// DefaultUpdate is the content written by the child.
	DefaultUpdate = "world"

	// file descriptors of the memory file and the report pipe in the child
	childPageFd   = 3
	childReportFd = 4
)

var log = logger.NewLogger("cow")

// Config is the configuration of the scenario.
type Config struct {
	// Initial is written to the page before the child starts.
	Initial string `json:"initial"`
	// Update is written to the page by the child.
	Update string `json:"update"`
	// PageSize is the size of the page, 0 for the system page size.
	PageSize int `json:"pageSize"`
	// ProcRoot is where pagemap and kpageflags tables are looked up.
	ProcRoot string `json:"procRoot"`
}

func (c *Config) setDefaults() {
	if c.Initial == "" {
		c.Initial = DefaultInitial
	}
	if c.Update == "" {
		c.Update = DefaultUpdate
	}
	if c.PageSize <= 0 {
		c.PageSize = os.Getpagesize()
	}
	if c.ProcRoot == "" {
		c.ProcRoot = procfs.DefaultRoot
	}
}

// Scenario shares a page copy-on-write between this process and a child
// process and observes how its frame changes as the child unshares and
// updates it.
type Scenario struct {
	cfg      Config
	observer *Observer
	out      *lockedWriter
	exe      string
}

// NewScenario creates a scenario. Observations are written to out as
// they are made.
func NewScenario(cfg Config, observer *Observer, out io.Writer) (*Scenario, error) {
	cfg.setDefaults()
	exe, err := os.Executable()
	if err != nil {
		return nil, errors.Wrap(err, "failed to find executable for child process")
	}
	return &Scenario{
		cfg:      cfg,
		observer: observer,
		out:      &lockedWriter{w: out},
		exe:      exe,
	}, nil
}

// Run runs the scenario and returns the collected observations. Errors
// of both actors are returned together, along with whatever could be
// observed.
func (s *Scenario) Run() (*Result, error) {
	var errs *multierror.Error

	result := &Result{
		Initial: s.cfg.Initial,
		Update:  s.cfg.Update,
	}

	page, err := NewSharedPage(s.cfg.PageSize, s.cfg.Initial)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set up shared page")
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.Error("%v", err)
		}
	}()

	cfg, err := json.Marshal(s.cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode child configuration")
	}

	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create report pipe")
	}
	defer r.Close()

	cmd := exec.Command(s.exe)
	cmd.Env = append(os.Environ(), ChildEnv+"="+string(cfg))
	cmd.ExtraFiles = []*os.File{page.File(), w}
	cmd.Stdout = s.out
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "failed to start child process %s", s.exe)
	}
	w.Close()
	log.Debug("started child process %d", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() {
		done <- s.collect(r, result)
	}()

	result.Parent = append(result.Parent, s.observe(LabelBeforeWait, page))

	if err := cmd.Wait(); err != nil {
		errs = multierror.Append(errs, errors.Wrapf(err, "child process %d failed", cmd.Process.Pid))
	}
	if err := <-done; err != nil {
		errs = multierror.Append(errs, err)
	}

	result.Parent = append(result.Parent, s.observe(LabelAfterWait, page))

	for _, o := range append(result.Parent, result.Child...) {
		if o.Error != "" {
			errs = multierror.Append(errs, errors.Errorf("%s: %s: %s", o.Actor, o.Label, o.Error))
		}
	}

	return result, errs.ErrorOrNil()
}

func (s *Scenario) observe(label string, page *SharedPage) *Observation {
	o := s.observer.Observe(Parent, label, page)
	fmt.Fprintln(s.out, o)
	return o
}

// collect reads observations reported by the child until it exits.
func (s *Scenario) collect(r io.Reader, result *Result) error {
	dec := json.NewDecoder(r)
	for {
		o := &Observation{}
		if err := dec.Decode(o); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.Wrap(err, "failed to decode child observation")
		}
		fmt.Fprintln(s.out, o)
		result.Child = append(result.Child, o)
	}
}

// lockedWriter serializes writes of the two actors.
type lockedWriter struct {
	sync.Mutex
	w io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.Lock()
	defer l.Unlock()
	return l.w.Write(p)
}
