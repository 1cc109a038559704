// Package interfaces contains the configuration contract types for the scrunch
// client.
//
// Most applications will not need to refer to these types directly, except for
// the fields of scrunch.Config. The implementations of the factory interfaces
// defined here are provided by the crcomponents package.
package interfaces
