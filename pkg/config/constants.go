package config

const (
	// EnvPrefix is the envconfig prefix for all service configuration.
	EnvPrefix = "STAGELY"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "STAGELY_DB_DSN"
	EnvDBHost = "STAGELY_DB_HOST"
	EnvDBUser = "STAGELY_DB_USER"
	EnvDBName = "STAGELY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
