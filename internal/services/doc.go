// Package services holds shared plumbing for external integrations: the
// error classification markers used by the signtool and GitHub clients and
// the Wrap helper that attaches them.
package services
