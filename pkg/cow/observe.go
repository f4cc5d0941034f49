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
	"fmt"
	"os"

	"github.com/intel/mem-diag/pkg/kpageflags"
	"github.com/intel/mem-diag/pkg/pagemap"
)

// Actors of the scenario.
const (
	Parent = "Parent"
	Child  = "Child"
)

// Checkpoint labels.
const (
	LabelBeforeUnshare = "Before madvise"
	LabelAfterUnshare  = "After madvise"
	LabelAfterWrite    = "After write"
	LabelBeforeWait    = "Waiting for child to finish"
	LabelAfterWait     = "Finished"
)

// Observation is the state of the shared page seen by one actor at one checkpoint.
type Observation struct {
	Actor          string `json:"actor"`
	Label          string `json:"label"`
	PID            int    `json:"pid"`
	Addr           uint64 `json:"addr"`
	Entry          uint64 `json:"entry"`
	Flags          uint64 `json:"flags"`
	FlagsAvailable bool   `json:"flagsAvailable"`
	Content        string `json:"content"`
	Error          string `json:"error,omitempty"`
}

// PFN returns the page frame number seen at the checkpoint, 0 if unknown.
func (o *Observation) PFN() uint64 {
	return pagemap.Entry(o.Entry).PFN()
}

// String formats the observation as a single line.
func (o *Observation) String() string {
	if o.Error != "" {
		pfn := "?"
		if o.PFN() != 0 {
			pfn = fmt.Sprintf("0x%x", o.PFN())
		}
		return fmt.Sprintf("%s: %s 0x%x(%s)=%s, error: %s",
			o.Actor, o.Label, o.Addr, pfn, o.Content, o.Error)
	}
	flags := "-"
	if o.FlagsAvailable {
		flags = fmt.Sprintf("0x%x", o.Flags)
		if names := kpageflags.FrameFlags(o.Flags).String(); names != "" {
			flags += " (" + names + ")"
		}
	}
	return fmt.Sprintf("%s: %s 0x%x(0x%x)=%s, flags=%s",
		o.Actor, o.Label, o.Addr, o.PFN(), o.Content, flags)
}

// Observer resolves the frame and flags backing a page.
type Observer struct {
	resolver *pagemap.Resolver
	flags    *kpageflags.Reader
}

// NewObserver creates an observer using the given resolver and flags reader.
func NewObserver(resolver *pagemap.Resolver, flags *kpageflags.Reader) *Observer {
	return &Observer{
		resolver: resolver,
		flags:    flags,
	}
}

// Observe records the state of the page as seen by the calling process.
func (o *Observer) Observe(actor, label string, page *SharedPage) *Observation {
	obs := &Observation{
		Actor:   actor,
		Label:   label,
		PID:     os.Getpid(),
		Addr:    page.Addr(),
		Content: page.Content(),
	}

	d, err := o.resolver.Resolve(obs.PID, obs.Addr)
	if err != nil {
		obs.Error = err.Error()
		return obs
	}
	obs.Entry = uint64(d.Entry)
	if !d.Mapped() {
		// no frame number to look up, e.g. hidden from unprivileged users
		return obs
	}

	flags, ok, err := o.flags.ReadFlags(d.Entry)
	if err != nil {
		obs.Error = err.Error()
		return obs
	}
	obs.Flags = uint64(flags)
	obs.FlagsAvailable = ok

	return obs
}
