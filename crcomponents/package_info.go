// Package crcomponents provides configuration builders for the subcomponents of
// the scrunch client.
//
// Some of the fields in scrunch.Config are factory interfaces; the
// implementations of those interfaces are provided by functions in this package
// such as HTTPConfiguration() and Logging(). Each factory is a builder whose
// methods can be chained to change its properties:
//
//	config := scrunch.Config{
//	    Logging: crcomponents.Logging().MinLevel(ldlog.Warn),
//	}
package crcomponents
