package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestBuffer_PushAndSnapshot(t *testing.T) {
	b := New[int](3)
	assert.Nil(t, b.Snapshot())

	b.Push(1)
	b.Push(2)
	assert.Equal(t, []int{1, 2}, b.Snapshot())

	b.Push(3)
	b.Push(4)
	assert.Equal(t, []int{2, 3, 4}, b.Snapshot())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{3, 4}, b.Last(2))
	assert.Equal(t, []int{2, 3, 4}, b.Last(10))
	assert.Nil(t, b.Last(0))
}

func TestBuffer_MinimumCapacity(t *testing.T) {
	b := New[string](0)
	b.Push("a")
	b.Push("b")
	assert.Equal(t, []string{"b"}, b.Snapshot())
}

func TestBuffer_KeepsMostRecent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		items := rapid.SliceOf(rapid.Int()).Draw(t, "items")

		b := New[int](capacity)
		for _, it := range items {
			b.Push(it)
		}

		want := items
		if len(want) > capacity {
			want = want[len(want)-capacity:]
		}
		got := b.Snapshot()
		if len(want) == 0 {
			if got != nil {
				t.Fatalf("expected empty snapshot, got %v", got)
			}
			return
		}
		if len(got) != len(want) {
			t.Fatalf("len %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("index %d: got %d want %d", i, got[i], want[i])
			}
		}
	})
}

func TestBuffer_Concurrent(t *testing.T) {
	b := New[int](100)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				b.Push(i*100 + j)
				_ = b.Last(10)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 100, b.Len())
}
