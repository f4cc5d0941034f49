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
	"io"
)

// Verdict is the outcome of checking one expectation of the scenario.
type Verdict int

const (
	// Unknown means the observations needed for the check are missing,
	// or page frame numbers were hidden from us.
	Unknown Verdict = iota
	// Yes means the expectation holds.
	Yes
	// No means the expectation does not hold.
	No
)

func (v Verdict) String() string {
	switch v {
	case Yes:
		return "yes"
	case No:
		return "no"
	}
	return "unknown"
}

func verdict(ok bool) Verdict {
	if ok {
		return Yes
	}
	return No
}

// Result collects the observations of both actors.
type Result struct {
	Initial string
	Update  string
	Parent  []*Observation
	Child   []*Observation
}

func find(observations []*Observation, label string) *Observation {
	for _, o := range observations {
		if o.Label == label && o.Error == "" {
			return o
		}
	}
	return nil
}

// samePFN compares the frames of two observations.
func samePFN(a, b *Observation) Verdict {
	if a == nil || b == nil || a.PFN() == 0 || b.PFN() == 0 {
		return Unknown
	}
	return verdict(a.PFN() == b.PFN())
}

func not(v Verdict) Verdict {
	switch v {
	case Yes:
		return No
	case No:
		return Yes
	}
	return Unknown
}

// SharedBeforeUnshare checks that the child initially used the parent's frame.
func (r *Result) SharedBeforeUnshare() Verdict {
	return samePFN(find(r.Child, LabelBeforeUnshare), find(r.Parent, LabelBeforeWait))
}

// UnsharedAfterMadvise checks that unsharing moved the child to a new frame.
func (r *Result) UnsharedAfterMadvise() Verdict {
	return not(samePFN(find(r.Child, LabelBeforeUnshare), find(r.Child, LabelAfterUnshare)))
}

// StableAfterWrite checks that writing after unsharing kept the child's frame.
func (r *Result) StableAfterWrite() Verdict {
	return samePFN(find(r.Child, LabelAfterUnshare), find(r.Child, LabelAfterWrite))
}

// ParentFrameStable checks that the parent kept its frame across the wait.
func (r *Result) ParentFrameStable() Verdict {
	return samePFN(find(r.Parent, LabelBeforeWait), find(r.Parent, LabelAfterWait))
}

// ChildContentAsExpected checks the content seen by the child at every checkpoint.
func (r *Result) ChildContentAsExpected() Verdict {
	expected := map[string]string{
		LabelBeforeUnshare: r.Initial,
		LabelAfterUnshare:  r.Initial,
		LabelAfterWrite:    r.Update,
	}
	return contentCheck(r.Child, expected)
}

// ParentContentStable checks that the child's write never reached the parent.
func (r *Result) ParentContentStable() Verdict {
	expected := map[string]string{
		LabelBeforeWait: r.Initial,
		LabelAfterWait:  r.Initial,
	}
	return contentCheck(r.Parent, expected)
}

func contentCheck(observations []*Observation, expected map[string]string) Verdict {
	for label, content := range expected {
		var o *Observation
		for _, c := range observations {
			if c.Label == label {
				o = c
				break
			}
		}
		if o == nil {
			return Unknown
		}
		if o.Content != content {
			return No
		}
	}
	return Yes
}

// Summarize writes the verdicts of the scenario.
func (r *Result) Summarize(w io.Writer) {
	fmt.Fprintf(w, "Summary:\n")
	fmt.Fprintf(w, "  child shared the parent's frame before madvise: %s\n", r.SharedBeforeUnshare())
	fmt.Fprintf(w, "  child got a new frame after madvise:            %s\n", r.UnsharedAfterMadvise())
	fmt.Fprintf(w, "  child kept its frame after write:               %s\n", r.StableAfterWrite())
	fmt.Fprintf(w, "  child saw the expected content:                 %s\n", r.ChildContentAsExpected())
	fmt.Fprintf(w, "  parent kept its frame:                          %s\n", r.ParentFrameStable())
	fmt.Fprintf(w, "  parent kept its content:                        %s\n", r.ParentContentStable())
}
