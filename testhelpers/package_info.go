// Package testhelpers contains types and functions that may be useful in
// testing code built on the scrunch client.
//
// The shojiservices subpackage provides an in-memory shoji resource tree that
// can stand in for the Crunch API in tests, along with builders for the
// documents it serves.
package testhelpers
