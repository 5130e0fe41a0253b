package utils

import (
	"encoding/json"
	"fmt"
)

// -----------------------------------------------------------------------------
// RingBuffer is a fixed-size circular buffer of prices.
// Once full, every Push drops the oldest point, so the length never changes.
// -----------------------------------------------------------------------------

type RingBuffer struct {
	data     []float64
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewRingBuffer creates an empty buffer with fixed capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 0 {
		capacity = 0
	}

	return &RingBuffer{
		data:     make([]float64, capacity),
		capacity: capacity,
	}
}

// -----------------------------------------------------------------------------

// NewRingBufferFrom creates a full buffer whose capacity is len(values).
func NewRingBufferFrom(values []float64) *RingBuffer {
	rb := NewRingBuffer(len(values))
	for _, v := range values {
		rb.Push(v)
	}
	return rb
}

// -----------------------------------------------------------------------------

// Push appends a price, overwriting the oldest one when full.
// A zero-capacity buffer ignores the value.
func (rb *RingBuffer) Push(value float64) {
	if rb.capacity == 0 {
		return
	}

	rb.data[rb.index] = value
	rb.index = (rb.index + 1) % rb.capacity

	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// Values returns all data in insertion order (oldest to newest)
func (rb *RingBuffer) Values() []float64 {
	result := make([]float64, rb.size)
	if rb.size == 0 {
		return result
	}

	// Oldest is at index when full, at 0 otherwise
	startIdx := 0
	if rb.size == rb.capacity {
		startIdx = rb.index
	}

	for i := 0; i < rb.size; i++ {
		result[i] = rb.data[(startIdx+i)%rb.capacity]
	}
	return result
}

// -----------------------------------------------------------------------------

// Latest returns the newest value.
func (rb *RingBuffer) Latest() (float64, bool) {
	if rb.size == 0 {
		return 0, false
	}
	return rb.data[(rb.index-1+rb.capacity)%rb.capacity], true
}

// -----------------------------------------------------------------------------

// Size returns current number of elements
func (rb *RingBuffer) Size() int {
	return rb.size
}

// -----------------------------------------------------------------------------

// Capacity returns buffer capacity (fixed)
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}

// -----------------------------------------------------------------------------

// Resize changes the capacity of the buffer
// If newCapacity < size, oldest data is dropped
func (rb *RingBuffer) Resize(newCapacity int) {
	if newCapacity <= 0 || newCapacity == rb.capacity {
		return
	}

	values := rb.Values()
	if len(values) > newCapacity {
		values = values[len(values)-newCapacity:]
	}

	rb.data = make([]float64, newCapacity)
	rb.capacity = newCapacity
	rb.index = 0
	rb.size = 0
	for _, v := range values {
		rb.Push(v)
	}
}

// -----------------------------------------------------------------------------

// IsFull returns whether buffer is full
func (rb *RingBuffer) IsFull() bool {
	return rb.size == rb.capacity
}

// -----------------------------------------------------------------------------
// JSON: a plain array, oldest first
// -----------------------------------------------------------------------------

func (rb *RingBuffer) MarshalJSON() ([]byte, error) {
	if rb == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(rb.Values())
}

// -----------------------------------------------------------------------------

func (rb *RingBuffer) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("price window: %w", err)
	}
	*rb = *NewRingBufferFrom(values)
	return nil
}
