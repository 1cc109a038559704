// Package internal contains implementation details that are shared between
// packages, but are not exposed to application code.
package internal
