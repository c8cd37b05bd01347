package ramp

import (
	"time"
)

// Step sets the new level.
type Step func(level uint8)

// Tick waits for d and reports whether to continue (false => cancelled).
type Tick func(d time.Duration) bool

// Walk steps one unit at a time from 'from' to 'to' inclusive, in either
// direction. Every level is set first and then held for 'every', so a walk over
// n levels takes n*every. It returns false if tick cancelled the walk.
func Walk(from, to uint8, every time.Duration, tick Tick, set Step) bool {
	dir := 1
	if to < from {
		dir = -1
	}
	for lvl := int(from); ; lvl += dir {
		set(uint8(lvl))
		if !tick(every) {
			return false
		}
		if lvl == int(to) {
			return true
		}
	}
}

// Len returns the number of levels Walk visits between from and to.
func Len(from, to uint8) int {
	if to < from {
		from, to = to, from
	}
	return int(to-from) + 1
}
