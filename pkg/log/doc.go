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

/*
Package log implements source-keyed logging on top of klog.

Every package creates its own logger with NewLogger("source"). Messages
of info severity and above are emitted unless suppressed by SetLevel.
Debug messages are off by default and can be turned on per source,
either programmatically with SetDebug or from the command line with

	--debug pagemap,kpageflags
	--debug on:*,off:procfs

As an alternative for '*' you can also use 'all'.
*/
package log
