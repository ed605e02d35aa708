// Package jobs persists signing job history on the signing host so operators
// can audit what was signed, when, and what failed.
package jobs
