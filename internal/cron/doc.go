// Package cron implements cronpoll's five-field schedule grammar.
//
// # Grammar
//
// A schedule is five whitespace-separated fields: minute, hour, day-of-month,
// month, day-of-week. Each field is one of:
//
//   - "*"          — matches every value
//   - "1,15,30"    — comma-separated list of integers
//   - "9-17"       — inclusive integer range
//   - "5"          — a single integer
//
// Classification precedence is List over Range over Exact: a field containing
// a comma is always a List, even when it also contains a dash. "1-3,5" is a
// List split naively on commas, and the "1-3" token fails the plain-integer
// parse, so it matches nothing — only 5 matches. This mirrors the legacy
// dispatch the grammar was ported from and is covered by tests; do not "fix"
// it without changing the documented grammar.
//
// There is no step syntax ("*/5"), no symbolic names, and no 7-as-Sunday
// alias. Tokens outside the grammar classify as a pattern that matches no
// value at all (fail closed), never as "*" by accident.
//
// # Numbering conventions
//
// Day-of-week follows time.Weekday: 0 = Sunday through 6 = Saturday.
// Month is one-based (1 = January), matching time.Month.
package cron
