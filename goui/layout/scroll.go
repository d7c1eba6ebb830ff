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

package layout

import (
	"sync"
	"time"
)

// A ScrollSaver coalesces scroll reports so the position is persisted
// at most once per interval, the most recent report winning.
type ScrollSaver struct {
	save     func(scrollTop int)
	interval time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	top     int
	stopped bool
}

// NewScrollSaver returns a saver calling save with the latest
// reported position. An interval of zero means ScrollSaveInterval.
func NewScrollSaver(save func(scrollTop int), interval time.Duration) *ScrollSaver {
	if interval <= 0 {
		interval = ScrollSaveInterval
	}
	return &ScrollSaver{save: save, interval: interval}
}

// Scrolled records the new position. The first report after an idle
// period schedules a save; reports arriving while one is scheduled
// only update the position it will record.
func (s *ScrollSaver) Scrolled(top int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.top = top
	if s.timer == nil {
		s.timer = time.AfterFunc(s.interval, s.flush)
	}
}

func (s *ScrollSaver) flush() {
	s.mu.Lock()
	s.timer = nil
	top := s.top
	stopped := s.stopped
	s.mu.Unlock()
	if !stopped {
		s.save(top)
	}
}

// Stop cancels any scheduled save and drops later reports.
func (s *ScrollSaver) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
