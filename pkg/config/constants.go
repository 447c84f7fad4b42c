package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "VERDANT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	// SessionIDPlaceholder is substituted by the payment gateway when it
	// redirects the buyer back to the storefront.
	SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"
)
