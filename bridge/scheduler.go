package bridge

import (
	"sort"
	"time"
)

// Scheduler keeps named one-shot tasks, which are run by whoever calls Due, usually from a tick.
// Scheduling a name again replaces the previous time.
type Scheduler struct {
	tasks map[string]time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{tasks: map[string]time.Time{}}
}

func (s *Scheduler) Schedule(name string, at time.Time) {
	s.tasks[name] = at
}

func (s *Scheduler) Cancel(name string) {
	delete(s.tasks, name)
}

func (s *Scheduler) Pending(name string) (time.Time, bool) {
	at, ok := s.tasks[name]
	return at, ok
}

// Due removes and returns the names of all tasks due at now, oldest first.
func (s *Scheduler) Due(now time.Time) []string {
	names := []string{}
	for name, at := range s.tasks {
		if !at.After(now) {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := s.tasks[names[i]], s.tasks[names[j]]
		if ti.Equal(tj) {
			return names[i] < names[j]
		}
		return ti.Before(tj)
	})
	for _, name := range names {
		delete(s.tasks, name)
	}
	return names
}

// Clear drops every pending task.
func (s *Scheduler) Clear() int {
	n := len(s.tasks)
	s.tasks = map[string]time.Time{}
	return n
}

func (s *Scheduler) Len() int {
	return len(s.tasks)
}
