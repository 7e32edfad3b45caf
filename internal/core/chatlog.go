package core

import "time"

// ChatEntry is one line of room chat.
type ChatEntry struct {
	Member Member
	Text   string
	Time   time.Time
}

// ChatLog keeps the most recent chat lines of a room in memory.
type ChatLog struct {
	limit   int
	entries []ChatEntry
}

// NewChatLog creates a log holding at most limit entries. A limit <= 0 keeps nothing.
func NewChatLog(limit int) *ChatLog {
	if limit < 0 {
		limit = 0
	}
	return &ChatLog{limit: limit}
}

// Append records a line, evicting the oldest one when full.
func (l *ChatLog) Append(e ChatEntry) {
	if l.limit == 0 {
		return
	}
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:l.limit-1]
	}
	l.entries = append(l.entries, e)
}

// Entries returns a copy of the log, oldest first.
func (l *ChatLog) Entries() []ChatEntry {
	out := make([]ChatEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of stored lines.
func (l *ChatLog) Len() int {
	return len(l.entries)
}
