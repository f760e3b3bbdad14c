package constants

// HTTP constants
const (
	// MaxRequestBodyBytes bounds JSON request bodies (base64 images are large)
	MaxRequestBodyBytes = 32 << 20

	// MaxEnrollImages is the largest image batch accepted by /register
	MaxEnrollImages = 20

	// SecretHeader carries the shared secret between the API and this service
	SecretHeader = "x-face-service-secret"
)
