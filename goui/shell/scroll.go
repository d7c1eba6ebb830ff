/*
Copyright 2025 The Perkeep Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package shell

import (
	"time"

	"perkeep.org/webui/goui/layout"
	"perkeep.org/webui/goui/navigator"
)

// ScrollSaver returns a saver persisting the grid's scroll offset
// into the current history entry through nav, throttled. An interval
// of zero means layout.ScrollSaveInterval. The DOM layer reports
// every scroll event to Scrolled and calls Stop when the grid
// unmounts.
func (sh *Shell) ScrollSaver(nav *navigator.Navigator, interval time.Duration) *layout.ScrollSaver {
	return layout.NewScrollSaver(func(top int) {
		nav.ReplaceState(navigator.State{"scroll": top})
	}, interval)
}

// ScrollOffset returns the scroll offset a popped history entry
// carries, so the grid can be put back before its first render. The
// state round-trips through the browser as JSON, which turns numbers
// into float64.
func ScrollOffset(state navigator.State) (top int, ok bool) {
	switch v := state["scroll"].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}
