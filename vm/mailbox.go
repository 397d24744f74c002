package vm

import "sync"

// ---------------------------------------------------------------------------
// Mailbox
// ---------------------------------------------------------------------------

// message is one mailbox entry. Until the receiver first looks at it, the
// term lives in frag, a private heap filled by the sender. After that it has
// been copied into the receiver heap and frag is dropped.
type message struct {
	frag *Heap
	term Term
}

// Mailbox is the only structure written by other processes. Senders append
// under the lock; the owner reads and removes. save is the receive cursor:
// the index of the next message loop_rec looks at.
type Mailbox struct {
	mu   sync.Mutex
	msgs []*message
	save int
}

// current returns the message under the cursor.
func (mb *Mailbox) current() (*message, bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.save >= len(mb.msgs) {
		return nil, false
	}
	return mb.msgs[mb.save], true
}

// next moves the cursor past the current message.
func (mb *Mailbox) next() {
	mb.mu.Lock()
	if mb.save < len(mb.msgs) {
		mb.save++
	}
	mb.mu.Unlock()
}

// remove drops the message under the cursor and rewinds the cursor.
func (mb *Mailbox) remove() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.save >= len(mb.msgs) {
		return
	}
	mb.msgs = append(mb.msgs[:mb.save], mb.msgs[mb.save+1:]...)
	mb.save = 0
}

// Len returns the number of queued messages.
func (mb *Mailbox) Len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.msgs)
}

func (mb *Mailbox) clear() {
	mb.mu.Lock()
	mb.msgs = nil
	mb.save = 0
	mb.mu.Unlock()
}
