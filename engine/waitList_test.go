package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_syncList_Move(t *testing.T) {
	tests := []struct {
		name  string
		gid   GID
		pos   int
		how   OffsetMode
		want  int
		order []GID
	}{
		{"set front", 3, 0, OffsetSet, 0, []GID{3, 1, 2, 4}},
		{"set clamp", 1, 99, OffsetSet, 3, []GID{2, 3, 4, 1}},
		{"set negative", 4, -5, OffsetSet, 0, []GID{4, 1, 2, 3}},
		{"cur forward", 1, 2, OffsetCur, 2, []GID{2, 3, 1, 4}},
		{"cur back", 4, -1, OffsetCur, 2, []GID{1, 2, 4, 3}},
		{"end", 1, 0, OffsetEnd, 3, []GID{2, 3, 4, 1}},
		{"end back", 4, -2, OffsetEnd, 1, []GID{1, 4, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newSyncList()
			for _, g := range []GID{1, 2, 3, 4} {
				l.Push(g)
			}
			got, err := l.Move(tt.gid, tt.pos, tt.how)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.order, l.Slice())
		})
	}
}

func Test_syncList(t *testing.T) {
	l := newSyncList()
	assert.Equal(t, 0, l.Insert(1, 5))
	assert.Equal(t, 0, l.Insert(2, 0))
	assert.Equal(t, 2, l.Insert(3, -1))
	assert.Equal(t, []GID{2, 1, 3}, l.Slice())

	_, err := l.Move(9, 0, OffsetSet)
	assert.ErrorIs(t, err, ErrnoNotFound)

	assert.True(t, l.Remove(1))
	assert.False(t, l.Remove(1))

	g, ok := l.Pop()
	assert.True(t, ok)
	assert.Equal(t, GID(2), g)
	assert.Equal(t, 1, l.Len())
	l.Pop()
	_, ok = l.Pop()
	assert.False(t, ok)
}
