package store

import (
	"fmt"
	"strconv"
	"strings"
)

type commitMode uint8

const (
	modeNever commitMode = iota
	modeAlways
	modeEvery
)

// Autocommit decides when Put flushes pending writes on its own. The zero
// value never autocommits.
type Autocommit struct {
	mode commitMode
	n    int
}

// Never leaves committing to the caller.
func Never() Autocommit { return Autocommit{} }

// Always commits after every successful Put.
func Always() Autocommit { return Autocommit{mode: modeAlways} }

// EveryN commits after every n-th successful Put. n must be positive.
func EveryN(n int) Autocommit { return Autocommit{mode: modeEvery, n: n} }

// ParseAutocommit reads "false", "true" or a positive count. "0" and the
// empty string mean never.
func ParseAutocommit(s string) (Autocommit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "no", "off", "never", "0":
		return Never(), nil
	case "true", "yes", "on", "always":
		return Always(), nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return Autocommit{}, fmt.Errorf("%w: autocommit must be true, false or a positive count, got %q", ErrConfiguration, s)
	}
	return EveryN(n), nil
}

func (a Autocommit) validate() error {
	if a.mode == modeEvery && a.n < 1 {
		return fmt.Errorf("autocommit count must be positive, got %d", a.n)
	}
	return nil
}

// due reports whether a commit is owed after counter puts since the last one.
func (a Autocommit) due(counter int) bool {
	switch a.mode {
	case modeAlways:
		return true
	case modeEvery:
		return counter%a.n == 0
	default:
		return false
	}
}

func (a Autocommit) String() string {
	switch a.mode {
	case modeAlways:
		return "true"
	case modeEvery:
		return strconv.Itoa(a.n)
	default:
		return "false"
	}
}
