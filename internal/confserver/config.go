package confserver

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime settings of the reference config server,
// populated from CONFSERVER_* environment variables.
type Config struct {
	// Address is the TCP address the HTTP server listens on.
	Address string `env:"ADDRESS" envDefault:":8090"`

	// DataDir is the directory holding one YAML document per namespace
	// ("<namespace>.yaml"). The flattened document is what clients
	// receive as the namespace's configurations.
	DataDir string `env:"DATA_DIR" envDefault:"./configs"`

	// Secret, when set, requires every request to carry either a valid
	// HMAC signature or a bearer token signed with the same secret.
	Secret string `env:"SECRET"`

	// RequestTimeout bounds a single inbound request.
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
}

// GetConfig loads the server configuration from the environment.
func GetConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "CONFSERVER_"}); err != nil {
		return Config{}, fmt.Errorf("error getting env configs: %w", err)
	}
	return cfg, nil
}
