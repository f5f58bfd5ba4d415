// Package env exposes the deployment environment the gateway runs in,
// read once from the ENV variable at startup.
package env

import "github.com/spf13/viper"

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

var Env string

func init() {
	Env = viper.GetString("ENV")
	if Env == "" {
		Env = Local
	}
}

func IsLocal() bool {
	return Env == Local
}

func IsProduction() bool {
	return Env == Production
}

func IsTesting() bool {
	return Env == Testing
}
