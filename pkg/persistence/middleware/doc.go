// Package middleware provides store decorators: execution-log redaction and
// at-rest encryption of variables.
package middleware
