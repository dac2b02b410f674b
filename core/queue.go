package core

import (
	"container/list"
	"sync"
)

// Executor runs delivery tasks on the subscriber's execution context.
// Post returns false when the task was rejected.
type Executor interface {
	Post(fn func()) bool
}

// taskList is a FIFO queue of pending tasks
type taskList struct {
	lst    *list.List
	closed bool
	notify chan struct{}
	sync.Mutex
}

func newTaskList() *taskList {
	return &taskList{
		lst:    list.New(),
		notify: make(chan struct{}, 1),
	}
}

func (l *taskList) Push(fn func()) bool {
	l.Lock()
	if l.closed {
		l.Unlock()
		return false
	}
	l.lst.PushBack(fn)
	l.Unlock()
	l.signal()
	return true
}

func (l *taskList) Pop() (func(), bool) {
	l.Lock()
	defer l.Unlock()
	if elm := l.lst.Front(); elm != nil {
		return l.lst.Remove(elm).(func()), true
	}
	return nil, false
}

func (l *taskList) Close() {
	l.Lock()
	l.closed = true
	l.Unlock()
	l.signal()
}

func (l *taskList) Closed() bool {
	l.Lock()
	defer l.Unlock()
	return l.closed
}

func (l *taskList) Len() int {
	l.Lock()
	defer l.Unlock()
	return l.lst.Len()
}

func (l *taskList) signal() {
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// SerialExecutor runs posted tasks one at a time, in posting order, on a
// single goroutine.
type SerialExecutor struct {
	tasks *taskList
	done  chan struct{}
	once  sync.Once
}

func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		tasks: newTaskList(),
		done:  make(chan struct{}),
	}
	go e.loop()
	return e
}

func (e *SerialExecutor) loop() {
	defer close(e.done)
	for {
		if fn, ok := e.tasks.Pop(); ok {
			fn()
			continue
		}
		if e.tasks.Closed() && e.tasks.Len() == 0 {
			return
		}
		<-e.tasks.notify
	}
}

func (e *SerialExecutor) Post(fn func()) bool {
	return e.tasks.Push(fn)
}

// Stop rejects further tasks, runs the queued ones and waits for the
// executor goroutine to exit.
func (e *SerialExecutor) Stop() {
	e.once.Do(e.tasks.Close)
	<-e.done
}
