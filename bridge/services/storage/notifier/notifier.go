/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package notifier

import (
	"sync"

	"github.com/sora-xor/sora-bridge-sdk/bridge/services/logging"
	"github.com/sora-xor/sora-bridge-sdk/bridge/services/storage/driver"
)

var logger = logging.MustGetLogger("storage.notifier")

// Notifier fans out store changes to in-process subscribers.
// A subscriber that does not keep up loses changes; consumers are expected to sweep periodically.
type Notifier struct {
	mutex       sync.RWMutex
	subscribers map[int]chan driver.Change
	next        int
}

func New() *Notifier {
	return &Notifier{subscribers: map[int]chan driver.Change{}}
}

func (n *Notifier) Notify(changes ...driver.Change) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()

	for _, c := range changes {
		for id, ch := range n.subscribers {
			select {
			case ch <- c:
			default:
				logger.Warnf("subscriber [%d] is lagging, dropping change [%s:%s:%s]", id, c.Table, c.Key, c.Op)
			}
		}
	}
}

func (n *Notifier) Subscribe(buffer int) (<-chan driver.Change, func()) {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	id := n.next
	n.next++
	ch := make(chan driver.Change, buffer)
	n.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mutex.Lock()
			defer n.mutex.Unlock()
			delete(n.subscribers, id)
			close(ch)
		})
	}
}
