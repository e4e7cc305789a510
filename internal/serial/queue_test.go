package serial

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubmitRunsInOrder(t *testing.T) {
	var q Queue
	var got []int
	for i := range 5 {
		q.Submit(func() { got = append(got, i) })
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestNestedSubmitRunsAfterCurrentTask(t *testing.T) {
	var q Queue
	var got []string
	q.Submit(func() {
		got = append(got, "outer start")
		q.Submit(func() { got = append(got, "inner") })
		got = append(got, "outer end")
	})
	assert.Equal(t, []string{"outer start", "outer end", "inner"}, got)
}

func TestEnqueueReportsDrainer(t *testing.T) {
	var q Queue
	assert.True(t, q.Enqueue(func() {}))
	assert.False(t, q.Enqueue(func() {}))
	q.Drain()
	assert.True(t, q.Enqueue(func() {}))
	q.Drain()
}

func TestTasksNeverOverlap(t *testing.T) {
	var q Queue
	var inside, overlaps, runs atomic.Int32

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				q.Submit(func() {
					if inside.Add(1) > 1 {
						overlaps.Add(1)
					}
					runs.Add(1)
					inside.Add(-1)
				})
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load())
	assert.EqualValues(t, 1600, runs.Load())
}

func TestPanickingTaskReleasesQueue(t *testing.T) {
	var q Queue
	assert.Panics(t, func() {
		q.Submit(func() { panic("boom") })
	})

	ran := false
	q.Submit(func() { ran = true })
	assert.True(t, ran)
}
