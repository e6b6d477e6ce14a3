package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PRACTIVA_DB_DSN"
	EnvDBHost = "PRACTIVA_DB_HOST"
	EnvDBUser = "PRACTIVA_DB_USER"
	EnvDBName = "PRACTIVA_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
