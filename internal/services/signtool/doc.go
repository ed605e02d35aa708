// Package signtool wraps the platform code-signing command-line tool.
package signtool
