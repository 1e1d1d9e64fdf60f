// Package config reads the demo binary's process environment. The client
// registration itself lives in the top-level config package; this only
// covers where the values come from.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	issuerEnvVar             = "OIDC_ISSUER"
	clientIDEnvVar           = "OIDC_CLIENT_ID"
	redirectURIEnvVar        = "OIDC_REDIRECT_URI"
	endSessionRedirectEnvVar = "OIDC_END_SESSION_REDIRECT_URI"
	scopesEnvVar             = "OIDC_SCOPES"
	dataFolderEnvVar         = "FOLDER"
	keyringServiceEnvVar     = "KEYRING_SERVICE"
	appNameEnvVar            = "APP_NAME"
)

type EnvVars struct{}

// Load pulls a .env file into the environment when one exists.
func Load() {
	_ = godotenv.Load()
}

func (EnvVars) GetIssuer() string {
	return GetEnv(issuerEnvVar, "")
}

func (EnvVars) GetClientID() string {
	return GetEnv(clientIDEnvVar, "")
}

func (EnvVars) GetRedirectURI() string {
	return GetEnv(redirectURIEnvVar, "http://localhost:8912/callback")
}

func (EnvVars) GetEndSessionRedirectURI() string {
	return GetEnv(endSessionRedirectEnvVar, "")
}

func (EnvVars) GetScopes() []string {
	scopes := GetEnv(scopesEnvVar, "profile email offline_access")
	return strings.Fields(scopes)
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(dataFolderEnvVar, "./data")
}

func (EnvVars) GetKeyringService() string {
	return GetEnv(keyringServiceEnvVar, "go-oidc-client")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameEnvVar, "OIDC Demo")
}

func GetEnv(envVar, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(envVar))
	if value == "" {
		return defaultValue
	}
	return value
}
