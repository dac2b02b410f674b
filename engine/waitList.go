package engine

import (
	"container/list"
	"sync"
)

// syncList is the FIFO queue of waiting downloads
type syncList struct {
	lst *list.List
	sync.Mutex
}

func newSyncList() *syncList {
	return &syncList{
		lst: list.New(),
	}
}

func (l *syncList) Push(g GID) *list.Element {
	l.Lock()
	defer l.Unlock()
	return l.lst.PushBack(g)
}

// Insert places g at index pos; a negative or out of range pos appends.
// It returns the resulting index.
func (l *syncList) Insert(g GID, pos int) int {
	l.Lock()
	defer l.Unlock()
	return l.insert(g, pos)
}

func (l *syncList) insert(g GID, pos int) int {
	if pos < 0 || pos >= l.lst.Len() {
		l.lst.PushBack(g)
		return l.lst.Len() - 1
	}
	mark := l.lst.Front()
	for i := 0; i < pos; i++ {
		mark = mark.Next()
	}
	l.lst.InsertBefore(g, mark)
	return pos
}

func (l *syncList) Pop() (GID, bool) {
	l.Lock()
	defer l.Unlock()
	if elm := l.lst.Front(); elm != nil {
		return l.lst.Remove(elm).(GID), true
	}
	return 0, false
}

func (l *syncList) Remove(g GID) bool {
	l.Lock()
	defer l.Unlock()
	return l.remove(g) >= 0
}

func (l *syncList) remove(g GID) int {
	i := 0
	for temp := l.lst.Front(); temp != nil; temp = temp.Next() {
		if temp.Value.(GID) == g {
			l.lst.Remove(temp)
			return i
		}
		i++
	}
	return -1
}

// Move repositions g relative to how and returns its new index, clamped to
// the queue bounds.
func (l *syncList) Move(g GID, pos int, how OffsetMode) (int, error) {
	l.Lock()
	defer l.Unlock()

	cur := l.remove(g)
	if cur < 0 {
		return -1, ErrnoNotFound
	}
	var dst int
	switch how {
	case OffsetSet:
		dst = pos
	case OffsetCur:
		dst = cur + pos
	case OffsetEnd:
		dst = l.lst.Len() + pos
	default:
		l.insert(g, cur)
		return -1, ErrnoInvalid
	}
	if dst < 0 {
		dst = 0
	}
	if dst > l.lst.Len() {
		dst = l.lst.Len()
	}
	return l.insert(g, dst), nil
}

func (l *syncList) Slice() []GID {
	l.Lock()
	defer l.Unlock()
	out := make([]GID, 0, l.lst.Len())
	for temp := l.lst.Front(); temp != nil; temp = temp.Next() {
		out = append(out, temp.Value.(GID))
	}
	return out
}

func (l *syncList) Len() int {
	l.Lock()
	defer l.Unlock()
	return l.lst.Len()
}
