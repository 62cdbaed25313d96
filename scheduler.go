package floe

// WorkItemKind identifies what a scheduled work item does when drained.
type WorkItemKind string

const (
	// WorkItemStart starts a new activity execution context for Node under Owner.
	WorkItemStart WorkItemKind = "start"

	// WorkItemResume re-executes an existing activity execution context.
	WorkItemResume WorkItemKind = "resume"

	// WorkItemBookmark resumes an existing context through one of its bookmarks.
	WorkItemBookmark WorkItemKind = "bookmark"

	// WorkItemChildCompleted delivers a terminal child to its parent context.
	WorkItemChildCompleted WorkItemKind = "child-completed"
)

// WorkItem carries the intent to start a new activity execution context, or
// to resume an existing one. Items are drained in scheduler order.
type WorkItem struct {
	Kind        WorkItemKind
	Node        *ActivityNode
	Owner       *ActivityExecutionContext
	Tag         string
	Variables   map[string]any
	ExistingAEC *ActivityExecutionContext
	Input       map[string]any
	Bookmark    *Bookmark
	ChildID     string
}

// Scheduler is the ordered queue of pending work items the engine drains each
// turn. Items execute in insertion order; composites may prepend so that
// synchronously scheduled children run before earlier sibling work.
type Scheduler struct {
	items []*WorkItem
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Schedule appends an item to the queue.
func (s *Scheduler) Schedule(item *WorkItem) {
	s.items = append(s.items, item)
}

// SchedulePrepend pushes an item onto the front of the queue, giving it
// stack-like priority over previously scheduled work.
func (s *Scheduler) SchedulePrepend(item *WorkItem) {
	s.items = append([]*WorkItem{item}, s.items...)
}

// Take removes and returns the next item, or nil if the queue is empty.
func (s *Scheduler) Take() *WorkItem {
	if len(s.items) == 0 {
		return nil
	}
	item := s.items[0]
	s.items = s.items[1:]
	return item
}

// Unschedule removes all items matching the filter and returns how many were
// removed.
func (s *Scheduler) Unschedule(filter func(*WorkItem) bool) int {
	kept := s.items[:0]
	removed := 0
	for _, item := range s.items {
		if filter(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept
	return removed
}

// Clear removes all items.
func (s *Scheduler) Clear() {
	s.items = nil
}

// HasAny reports whether any items are pending.
func (s *Scheduler) HasAny() bool {
	return len(s.items) > 0
}

// Len returns the number of pending items.
func (s *Scheduler) Len() int {
	return len(s.items)
}

// Items returns a copy of the pending queue in order. Used by state
// extraction; mutating the returned slice does not affect the scheduler.
func (s *Scheduler) Items() []*WorkItem {
	items := make([]*WorkItem, len(s.items))
	copy(items, s.items)
	return items
}
