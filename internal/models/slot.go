package models

import (
	"fmt"
	"sort"
)

// SlotRef identifies an exam session by 1-based day and session numbers.
// It is the only slot key the engine uses; array positions are converted at
// the calendar boundary via SlotRefFromIndex.
type SlotRef struct {
	Day     int `json:"day"`
	Session int `json:"session"`
}

// SlotRefFromIndex converts 0-based storage indexes into a SlotRef.
func SlotRefFromIndex(dayIdx, sessionIdx int) SlotRef {
	return SlotRef{Day: dayIdx + 1, Session: sessionIdx + 1}
}

// Indexes returns the 0-based day and session positions.
func (r SlotRef) Indexes() (int, int) {
	return r.Day - 1, r.Session - 1
}

// Valid reports whether both components are 1-based.
func (r SlotRef) Valid() bool {
	return r.Day >= 1 && r.Session >= 1
}

func (r SlotRef) String() string {
	return fmt.Sprintf("d%d-s%d", r.Day, r.Session)
}

// SortSlotRefs orders refs by day then session.
func SortSlotRefs(refs []SlotRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Day != refs[j].Day {
			return refs[i].Day < refs[j].Day
		}
		return refs[i].Session < refs[j].Session
	})
}
