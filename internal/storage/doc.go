// Package storage provides the optional run journal.
//
// The journal records run OUTCOMES (finished / failed / suppressed) so
// operators can answer "did last night's job run". It never stores trigger
// state: the de-duplication memory is in-process by design and a restart is
// allowed to duplicate a fire within one window.
package storage
