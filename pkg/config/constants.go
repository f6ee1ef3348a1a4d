package config

const (
	// EnvPrefix is intentionally empty: every variable names its full
	// PROOFPULSE_* key in its envconfig tag.
	EnvPrefix = ""

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvDBDSN  = "PROOFPULSE_DB_DSN"
	EnvDBHost = "PROOFPULSE_DB_HOST"
	EnvDBUser = "PROOFPULSE_DB_USER"
	EnvDBName = "PROOFPULSE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
