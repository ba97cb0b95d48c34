package admission

import "container/list"

// DefaultSeenCapacity bounds the signal-ID set.
const DefaultSeenCapacity = 10000

// SeenSet remembers recent signal IDs, evicting the oldest past capacity.
type SeenSet struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = DefaultSeenCapacity
	}
	return &SeenSet{capacity: capacity, order: list.New(), index: make(map[string]*list.Element)}
}

func (s *SeenSet) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *SeenSet) Add(id string) {
	if id == "" || s.Has(id) {
		return
	}
	s.index[id] = s.order.PushBack(id)
	for s.order.Len() > s.capacity {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
}

func (s *SeenSet) Remove(id string) {
	if e, ok := s.index[id]; ok {
		s.order.Remove(e)
		delete(s.index, id)
	}
}

func (s *SeenSet) Len() int { return s.order.Len() }
