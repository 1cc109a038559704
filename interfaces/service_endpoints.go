package interfaces

// ServiceEndpoints allows configuration of a custom API base URI.
//
// The default behavior, if you do not set this value, is that the client
// connects to the standard Crunch production API. Set a non-default value when
// connecting to a private instance of the platform, or to a test fixture that
// simulates the service.
//
// See Config.ServiceEndpoints for more details.
type ServiceEndpoints struct {
	// API is the base URI of the Crunch API, such as "https://mycompany.crunch.io/api/".
	API string
}
