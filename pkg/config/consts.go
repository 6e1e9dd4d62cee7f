package config

const (
	// EnvPrefix namespaces every crewboard environment variable.
	EnvPrefix = "CREWBOARD"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)
