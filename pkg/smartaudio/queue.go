// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package smartaudio

// CommandQueue is a fixed-capacity ring of encoded command frames.
// One slot is always left free to tell a full ring from an empty one, so at
// most QueueSize-1 commands are pending at a time.
type CommandQueue struct {
	slots [QueueSize]Command
	head  int
	tail  int
}

// Empty reports whether no command is pending
func (q *CommandQueue) Empty() bool {
	return q.head == q.tail
}

// Full reports whether another command would be dropped
func (q *CommandQueue) Full() bool {
	return (q.head+1)%QueueSize == q.tail
}

// Len returns the number of pending commands
func (q *CommandQueue) Len() int {
	if q.head >= q.tail {
		return q.head - q.tail
	}
	return QueueSize + q.head - q.tail
}

// Push appends a command. It returns false, leaving the queue unchanged,
// when the queue is full.
func (q *CommandQueue) Push(c Command) bool {
	if q.Full() {
		return false
	}
	q.slots[q.head] = c
	q.head = (q.head + 1) % QueueSize
	return true
}

// Pop removes and returns the oldest command
func (q *CommandQueue) Pop() (Command, bool) {
	if q.Empty() {
		return Command{}, false
	}
	c := q.slots[q.tail]
	q.slots[q.tail] = Command{}
	q.tail = (q.tail + 1) % QueueSize
	return c, true
}
