package cron

import (
	"strconv"
	"strings"
)

type patternKind int

const (
	kindAny patternKind = iota
	kindList
	kindRange
	kindExact
	// kindNone is the fail-closed classification for tokens outside the
	// grammar (e.g. "*/5", "abc"). It matches no value.
	kindNone
)

// Pattern is one parsed schedule field. The variant is decided once at parse
// time; Matches never re-inspects the raw text.
type Pattern struct {
	kind patternKind
	raw  string

	list       []int
	start, end int
	exact      int
}

// parsePattern classifies a single field token.
//
// Precedence: List (contains ',') over Range (contains '-') over Exact.
// Classification itself never fails: anything unparseable becomes a pattern
// that matches nothing.
func parsePattern(tok string) Pattern {
	p := Pattern{raw: tok}

	switch {
	case tok == "*":
		p.kind = kindAny
	case strings.Contains(tok, ","):
		p.kind = kindList
		for _, part := range strings.Split(tok, ",") {
			n, err := strconv.Atoi(part)
			if err != nil {
				// e.g. the "1-3" token of "1-3,5": not decomposed into a
				// sub-range, just an unmatchable list member.
				continue
			}
			p.list = append(p.list, n)
		}
	case strings.Contains(tok, "-"):
		parts := strings.SplitN(tok, "-", 2)
		start, err1 := strconv.Atoi(parts[0])
		end, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			p.kind = kindNone
			return p
		}
		p.kind = kindRange
		p.start, p.end = start, end
	default:
		n, err := strconv.Atoi(tok)
		if err != nil {
			p.kind = kindNone
			return p
		}
		p.kind = kindExact
		p.exact = n
	}
	return p
}

// Matches reports whether the observed calendar value satisfies the pattern.
// A range whose start exceeds its end matches nothing (no wraparound).
func (p Pattern) Matches(value int) bool {
	switch p.kind {
	case kindAny:
		return true
	case kindList:
		for _, n := range p.list {
			if n == value {
				return true
			}
		}
		return false
	case kindRange:
		return p.start <= value && value <= p.end
	case kindExact:
		return p.exact == value
	default:
		return false
	}
}

// String returns the raw field text the pattern was parsed from.
func (p Pattern) String() string { return p.raw }
