// Package scheduler owns the recurring-job registry and the poll loop.
//
// # Model
//
// Every registered job pairs a five-field cron schedule (internal/cron) with
// a trigger evaluator (internal/trigger). One goroutine wakes at the
// configured poll interval, reads the clock once, and evaluates every job
// sequentially against that instant. Jobs whose evaluator fires are handed
// to the execution engine (internal/runner); the scheduler never runs job
// bodies itself and never waits for them.
//
// Because a single goroutine performs all evaluations, each evaluator has
// exactly one writer and needs no locking of its own. The evaluator's 60s
// de-duplication window makes sub-minute polling safe: a matching minute
// fires at most once no matter how often it is observed.
//
// # Registration
//
// Jobs are registered under a stable human-readable name and upserted by
// name, so config hot reloads replace rather than duplicate. A malformed
// schedule expression fails that one registration and leaves every other
// job untouched.
package scheduler
