package acl

import "driveshare/core/store"

// Order ranks access levels READ < WRITE < FULL. Unknown levels rank below READ.
func Order(level store.AccessLevel) int {
	switch level {
	case store.LevelRead:
		return 1
	case store.LevelWrite:
		return 2
	case store.LevelFull:
		return 3
	}
	return 0
}

// Satisfies reports whether a grant at have covers required.
func Satisfies(have, required store.AccessLevel) bool {
	return Order(have) > 0 && Order(have) >= Order(required)
}

func ValidLevel(level store.AccessLevel) bool {
	return Order(level) > 0
}
