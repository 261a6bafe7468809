package secrets

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/juju/errors"
)

// VaultSource reads one key/value secret from HashiCorp Vault. Each key of
// the secret is a configuration name.
type VaultSource struct {
	Client    *api.Client
	Mount     string
	Path      string
	KVVersion int
}

// NewVaultSource connects to address and reads from path, whose first
// segment is the KV mount ("secret/todoapi"). A "kv1:" prefix selects
// version 1 of the engine. The token comes from VAULT_TOKEN.
func NewVaultSource(address, path string) (*VaultSource, error) {
	version := 2
	if rest, ok := strings.CutPrefix(path, "kv1:"); ok {
		version = 1
		path = rest
	}
	mount, secretPath, ok := strings.Cut(strings.Trim(path, "/"), "/")
	if !ok || mount == "" || secretPath == "" {
		return nil, errors.NotValidf("vault path %q", path)
	}

	cfg := api.DefaultConfig()
	if cfg.Error != nil {
		return nil, errors.Annotate(cfg.Error, "vault config")
	}
	cfg.Address = address
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, errors.Annotate(err, "vault client")
	}
	return &VaultSource{Client: client, Mount: mount, Path: secretPath, KVVersion: version}, nil
}

func (s *VaultSource) Secrets(ctx context.Context) (map[string]string, error) {
	var (
		secret *api.KVSecret
		err    error
	)
	if s.KVVersion == 1 {
		secret, err = s.Client.KVv1(s.Mount).Get(ctx, s.Path)
	} else {
		secret, err = s.Client.KVv2(s.Mount).Get(ctx, s.Path)
	}
	if isNotFound(err) {
		return nil, errors.NotFoundf("vault secret %s/%s", s.Mount, s.Path)
	} else if err != nil {
		return nil, errors.Annotatef(err, "read vault secret %s/%s", s.Mount, s.Path)
	}

	values := make(map[string]string, len(secret.Data))
	for key, value := range secret.Data {
		switch v := value.(type) {
		case string:
			values[key] = v
		case nil:
		default:
			values[key] = fmt.Sprint(v)
		}
	}
	return values, nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, api.ErrSecretNotFound) {
		return true
	}
	var apiErr *api.ResponseError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
