// Package shoji implements the document protocol that the Crunch API speaks.
//
// Every API resource is represented as a JSON document with an "element" type:
// entities (single resources with a body), catalogs (indexes of tuples keyed by
// entity URL), orders (nested graphs of references), and views. This package
// provides the document types, a Session for making authenticated requests,
// and helpers for the asynchronous 202-progress responses that long-running
// operations return.
//
// Applications normally use the higher-level object model in the root scrunch
// package; this package is exposed for scripts that need to reach parts of the
// API the object model does not cover.
package shoji
