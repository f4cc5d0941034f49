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
	"k8s.io/klog/v2"
)

const (
	// KlogBackendName is the name of our klog-based Backend.
	KlogBackendName = "klog"
	// depth of the call stack between klog and the caller of a Logger.
	klogDepth = 4
)

// klogBackend emits messages using klog.
type klogBackend struct{}

// NewKlogBackend returns a Backend emitting messages using klog.
func NewKlogBackend() Backend {
	return &klogBackend{}
}

func (*klogBackend) Name() string {
	return KlogBackendName
}

func (*klogBackend) Log(level Level, source, message string) {
	message = "[" + source + "] " + message
	switch level {
	case LevelDebug:
		klog.InfoDepth(klogDepth, "D: "+message)
	case LevelInfo:
		klog.InfoDepth(klogDepth, message)
	case LevelWarn:
		klog.WarningDepth(klogDepth, message)
	default:
		klog.ErrorDepth(klogDepth, message)
	}
}

func (*klogBackend) Flush() {
	klog.Flush()
}
