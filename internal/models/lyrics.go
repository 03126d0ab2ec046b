package models

import (
	"fmt"
	"strings"
	"time"
)

// SyncedLine is a single lyric line with its offset from the start of the track.
type SyncedLine struct {
	Offset time.Duration `json:"offset"`
	Text   string        `json:"text"`
}

// LyricsPayload holds plain and/or time-synced lyrics returned by one service.
type LyricsPayload struct {
	Unsynced string       `json:"unsynced,omitempty"`
	Synced   []SyncedLine `json:"synced,omitempty"`
	Service  string       `json:"service"`
}

// IsSynced reports whether the payload carries time-synced lines.
func (l *LyricsPayload) IsSynced() bool {
	return l != nil && len(l.Synced) > 0
}

// IsEmpty reports whether the payload carries no lyrics at all.
func (l *LyricsPayload) IsEmpty() bool {
	return l == nil || (len(l.Synced) == 0 && strings.TrimSpace(l.Unsynced) == "")
}

// Clone returns a deep copy of the payload.
func (l *LyricsPayload) Clone() *LyricsPayload {
	c := *l
	if l.Synced != nil {
		c.Synced = append([]SyncedLine(nil), l.Synced...)
	}
	return &c
}

// LRC renders synced lines in LRC format ("[mm:ss.xx] text").
func (l *LyricsPayload) LRC() string {
	var b strings.Builder
	for _, line := range l.Synced {
		cs := line.Offset.Milliseconds() / 10
		fmt.Fprintf(&b, "[%02d:%02d.%02d] %s\n", cs/6000, (cs/100)%60, cs%100, line.Text)
	}
	return b.String()
}
