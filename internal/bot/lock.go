package bot

import "sync"

// keyedLock serializes processing per (chat, message) pair so a create
// and a near-simultaneous edit of the same message cannot interleave.
type keyedLock struct {
	mu    sync.Mutex
	locks map[postKey]*lockEntry
}

type postKey struct {
	chatID    int64
	messageID int
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLock() *keyedLock {
	return &keyedLock{locks: make(map[postKey]*lockEntry)}
}

// Lock acquires the lock for the key and returns its release func.
func (k *keyedLock) Lock(chatID int64, messageID int) func() {
	key := postKey{chatID: chatID, messageID: messageID}

	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
