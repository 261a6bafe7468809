package secrets

import (
	"context"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"
	"github.com/juju/errors"
)

// KeyVaultSource reads every secret of an Azure Key Vault.
type KeyVaultSource struct {
	Client *azsecrets.Client
}

// NewKeyVaultSource authenticates with the default Azure credential chain
// (environment, workload identity, managed identity, Azure CLI).
func NewKeyVaultSource(endpoint string) (*KeyVaultSource, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, errors.Annotate(err, "azure credential")
	}
	client, err := azsecrets.NewClient(endpoint, cred, nil)
	if err != nil {
		return nil, errors.Annotatef(err, "key vault client for %s", endpoint)
	}
	return &KeyVaultSource{Client: client}, nil
}

func (s *KeyVaultSource) Secrets(ctx context.Context) (map[string]string, error) {
	values := make(map[string]string)
	pager := s.Client.NewListSecretPropertiesPager(nil)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, errors.Annotate(err, "list key vault secrets")
		}
		for _, props := range page.Value {
			if props == nil || props.ID == nil {
				continue
			}
			if props.Attributes != nil && props.Attributes.Enabled != nil && !*props.Attributes.Enabled {
				continue
			}
			name := props.ID.Name()
			resp, err := s.Client.GetSecret(ctx, name, "", nil)
			if err != nil {
				return nil, errors.Annotatef(err, "get key vault secret %s", name)
			}
			if resp.Value != nil {
				values[name] = *resp.Value
			}
		}
	}
	return values, nil
}
