// Package secrets reads configuration values from a secret store at startup.
package secrets

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo/v2"

	"github.com/Joseda-hg/todoapi/internal/config"
)

var logger = loggo.GetLogger("todoapi.secrets")

// Source yields secret name/value pairs. Names are in secret store form,
// e.g. "azure-cosmos-connection-string".
type Source interface {
	Secrets(ctx context.Context) (map[string]string, error)
}

// Load applies every secret of every source to cfg, later sources winning.
// Secrets with no matching configuration field are skipped.
func Load(ctx context.Context, cfg *config.Config, sources ...Source) error {
	for _, source := range sources {
		values, err := source.Secrets(ctx)
		if err != nil {
			return errors.Annotate(err, "read secrets")
		}
		for name, value := range values {
			if cfg.Apply(name, value) {
				logger.Debugf("applied secret %s", name)
				continue
			}
			logger.Tracef("ignoring secret %s", name)
		}
	}
	return nil
}

// Sources builds the secret sources enabled in cfg.
func Sources(cfg config.Config) ([]Source, error) {
	var sources []Source
	if cfg.VaultAddress != "" && cfg.VaultPath != "" {
		source, err := NewVaultSource(cfg.VaultAddress, cfg.VaultPath)
		if err != nil {
			return nil, errors.Trace(err)
		}
		sources = append(sources, source)
	}
	if cfg.KeyVaultEndpoint != "" {
		source, err := NewKeyVaultSource(cfg.KeyVaultEndpoint)
		if err != nil {
			return nil, errors.Trace(err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}
