package crcomponents

import (
	"github.com/Crunch-io/scrunch/interfaces"
)

// PrivateInstanceEndpoints specifies the base URI for a private Crunch
// instance, such as one hosted under your own subdomain.
//
// Store this value in the ServiceEndpoints field of your client configuration:
//
//	config := scrunch.Config{
//	    ServiceEndpoints: crcomponents.PrivateInstanceEndpoints("https://mycompany.crunch.io/api/"),
//	}
//
// If you do not set ServiceEndpoints at all, the client connects to the
// standard production service.
func PrivateInstanceEndpoints(apiBaseURI string) interfaces.ServiceEndpoints {
	return interfaces.ServiceEndpoints{
		API: apiBaseURI,
	}
}
