package observable

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValue_SubscribeReceivesCurrentAndChanges(t *testing.T) {
	v := New(1)

	var got []int
	unsubscribe := v.Subscribe(func(n int) { got = append(got, n) })

	v.Set(2)
	v.Update(func(n int) int { return n * 10 })

	assert.Equal(t, []int{1, 2, 20}, got)
	assert.Equal(t, 20, v.Get())

	unsubscribe()
	v.Set(3)
	assert.Equal(t, []int{1, 2, 20}, got, "no delivery after unsubscribe")
	assert.Equal(t, 0, v.subscriberCount())

	// Calling unsubscribe twice is harmless.
	unsubscribe()
}

func TestValue_UpdateIf(t *testing.T) {
	v := New("a")

	calls := 0
	v.Subscribe(func(string) { calls++ })

	changed := v.UpdateIf(func(s string) (string, bool) { return s, false })
	assert.False(t, changed)
	assert.Equal(t, 1, calls, "only the initial delivery")

	changed = v.UpdateIf(func(s string) (string, bool) { return s + "b", true })
	assert.True(t, changed)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "ab", v.Get())
}

func TestValue_MultipleSubscribersInOrder(t *testing.T) {
	v := New(0)

	var order []string
	v.Subscribe(func(int) { order = append(order, "first") })
	v.Subscribe(func(int) { order = append(order, "second") })
	order = nil

	v.Set(1)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestValue_ReentrantSetDeliversEveryValueInOrder(t *testing.T) {
	v := New(0)

	var seenA, seenB []int
	v.Subscribe(func(n int) {
		seenA = append(seenA, n)
		if n == 1 {
			v.Set(2)
		}
	})
	v.Subscribe(func(n int) { seenB = append(seenB, n) })

	v.Set(1)

	assert.Equal(t, []int{0, 1, 2}, seenA)
	assert.Equal(t, []int{0, 1, 2}, seenB)
	assert.Equal(t, 2, v.Get())
}

func TestValue_SubscribeInsideCallback(t *testing.T) {
	v := New(0)

	var inner []int
	v.Subscribe(func(n int) {
		if n == 1 {
			v.Subscribe(func(m int) { inner = append(inner, m) })
		}
	})

	v.Set(1)
	v.Set(2)

	assert.Equal(t, []int{1, 2}, inner)
}

func TestValue_Close(t *testing.T) {
	v := New(0)
	calls := 0
	v.Subscribe(func(int) { calls++ })

	v.Close()
	v.Set(5)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 5, v.Get())
	assert.Equal(t, 0, v.subscriberCount())
}
