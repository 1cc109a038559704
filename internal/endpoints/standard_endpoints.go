package endpoints

const (
	// DefaultAPIBaseURI is the default base URI of the Crunch API service.
	DefaultAPIBaseURI = "https://app.crunch.io/api/"

	// LoginPath is the URL path, relative to the API root, of the password
	// authentication endpoint.
	LoginPath = "public/login/"

	// DatasetsPath is the URL path, relative to the API root, of the dataset
	// catalog. It is used as a fallback when the API root document does not
	// advertise the catalog location itself.
	DatasetsPath = "datasets/"
)
