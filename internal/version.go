package internal

// Version is the current version string of the scrunch package. This is
// updated by our release scripts.
const Version = "1.2.0"

// UserAgent is the User-Agent header value sent with all API requests.
const UserAgent = "scrunch-go/" + Version
