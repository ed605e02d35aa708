// Package watchdir observes a directory by polling and reports regular
// files that newly appear. It is the change-detection primitive under the
// signing handoff protocol; the polling mechanism is an implementation
// detail behind the Watcher API and could be replaced with native
// filesystem notifications without changing callers.
package watchdir
