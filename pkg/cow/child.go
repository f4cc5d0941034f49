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
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/intel/mem-diag/pkg/kpageflags"
	"github.com/intel/mem-diag/pkg/pagemap"
	"github.com/intel/mem-diag/pkg/procfs"
)

// IsChild returns true if this process was started as the child actor.
func IsChild() bool {
	_, ok := os.LookupEnv(ChildEnv)
	return ok
}

// ChildMain runs the child actor and returns its exit status.
func ChildMain() int {
	report := os.NewFile(childReportFd, "report")
	defer report.Close()

	cfg := Config{}
	if err := json.Unmarshal([]byte(os.Getenv(ChildEnv)), &cfg); err != nil {
		log.Error("invalid child configuration: %v", err)
		return 1
	}
	cfg.setDefaults()

	page, err := MapSharedPage(os.NewFile(childPageFd, memfdName), cfg.PageSize)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	defer page.Close()

	fs := procfs.NewFS(cfg.ProcRoot)
	observer := NewObserver(pagemap.NewResolver(fs, uint64(cfg.PageSize)), kpageflags.NewReader(fs))

	if err := RunChild(cfg, observer, page, report); err != nil {
		log.Error("%v", err)
		return 1
	}
	return 0
}

// RunChild runs the steps of the child actor on page, reporting every
// observation to report. A failing step does not stop the remaining
// ones, so the parent always gets to see the whole picture.
func RunChild(cfg Config, observer *Observer, page *SharedPage, report io.Writer) error {
	var errs *multierror.Error

	enc := json.NewEncoder(report)
	observe := func(label string) {
		o := observer.Observe(Child, label, page)
		if o.Error != "" {
			errs = multierror.Append(errs, errors.Errorf("%s: %s", label, o.Error))
		}
		if err := enc.Encode(o); err != nil {
			errs = multierror.Append(errs, errors.Wrap(err, "failed to report observation"))
		}
	}

	observe(LabelBeforeUnshare)
	if err := page.Unshare(); err != nil {
		errs = multierror.Append(errs, err)
	}
	observe(LabelAfterUnshare)
	if err := page.Write(cfg.Update); err != nil {
		errs = multierror.Append(errs, err)
	}
	observe(LabelAfterWrite)

	if err := page.Unmap(); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}
