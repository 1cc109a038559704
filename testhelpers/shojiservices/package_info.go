// Package shojiservices provides canned shoji documents and HTTP handlers
// for testing code that talks to a Crunch API instance, without real HTTP.
//
// A Site is an in-memory resource tree keyed by URL path. Wrap its handler
// with httphelpers.RecordingHandler to assert on the requests a test made,
// and use httphelpers.ClientFromHandler to route a Session at it.
package shojiservices
