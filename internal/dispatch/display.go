package dispatch

import (
	"sync"
	"time"
)

// DisplayMessage is the text currently shown on the LCD.
type DisplayMessage struct {
	Text      string    `json:"text"`
	RecordID  int64     `json:"record_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Display holds the single outstanding LCD message. A newer message always
// replaces the current one.
type Display struct {
	mu      sync.RWMutex
	current *DisplayMessage
}

// Set replaces the current message unless msg comes from an older record.
func (d *Display) Set(msg DisplayMessage) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil && msg.RecordID < d.current.RecordID {
		return false
	}
	d.current = &msg
	return true
}

// Current returns the message on display, if any.
func (d *Display) Current() (DisplayMessage, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.current == nil {
		return DisplayMessage{}, false
	}
	return *d.current, true
}
