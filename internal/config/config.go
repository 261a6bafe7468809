package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/juju/errors"
	"gopkg.in/yaml.v3"
)

const (
	BackendSQL   = "sql"
	BackendMongo = "mongo"
)

// EnvironmentDevelop disables the CORS allow-list.
const EnvironmentDevelop = "develop"

// PortalOrigins are always allowed outside of the develop environment.
var PortalOrigins = []string{
	"https://portal.azure.com",
	"https://ms.portal.azure.com",
}

type Config struct {
	Backend          string   `yaml:"backend"`
	DatabaseURL      string   `yaml:"database_url,omitempty"`
	MongoURL         string   `yaml:"mongo_url,omitempty"`
	MongoDatabase    string   `yaml:"mongo_database"`
	WebPort          int      `yaml:"web_port"`
	Environment      string   `yaml:"environment,omitempty"`
	AllowOrigins     []string `yaml:"allow_origins,omitempty"`
	KeyVaultEndpoint string   `yaml:"key_vault_endpoint,omitempty"`
	VaultAddress     string   `yaml:"vault_address,omitempty"`
	VaultPath        string   `yaml:"vault_path,omitempty"`
	TraceEndpoint    string   `yaml:"trace_endpoint,omitempty"`
	TraceInsecure    bool     `yaml:"trace_insecure,omitempty"`
	ServiceName      string   `yaml:"service_name"`
	LogLevel         string   `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Backend:       BackendSQL,
		MongoDatabase: "Todo",
		WebPort:       3100,
		ServiceName:   "API",
		LogLevel:      "<root>=INFO",
	}
}

func DefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Trace(err)
	}
	return filepath.Join(configDir, "todoapi", "config.yaml"), nil
}

// DefaultDatabasePath places the SQLite file next to the config file.
func DefaultDatabasePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "todoapi.db")
}

func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return errors.Trace(os.MkdirAll(dir, 0o755))
}

func Load(path string) (Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return Config{}, errors.Trace(err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return Config{}, errors.Annotate(err, "parse config")
	}
	return config, nil
}

func Save(path string, cfg Config) error {
	if err := EnsureDir(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Trace(err)
	}

	return errors.Trace(os.WriteFile(path, data, 0o644))
}

func (c Config) Validate() error {
	switch c.Backend {
	case BackendSQL:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return errors.NotValidf("empty database url")
		}
	case BackendMongo:
		if strings.TrimSpace(c.MongoURL) == "" {
			return errors.NotValidf("empty mongo url")
		}
		if c.MongoDatabase == "" {
			return errors.NotValidf("empty mongo database name")
		}
	default:
		return errors.NotValidf("backend %q", c.Backend)
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return errors.NotValidf("web port %d", c.WebPort)
	}
	return nil
}

// OriginList returns the CORS allow-list: everything in the develop
// environment, otherwise the portal origins plus AllowOrigins.
func (c Config) OriginList() []string {
	if c.Environment == EnvironmentDevelop {
		return []string{"*"}
	}
	origins := append([]string{}, PortalOrigins...)
	for _, origin := range c.AllowOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// SecretName turns a secret store key such as "azure-cosmos-connection-string"
// into its environment variable form.
func SecretName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Apply sets the field bound to the environment variable name, which may be
// given in secret store form. Unknown names are reported as false.
func (c *Config) Apply(name, value string) bool {
	switch SecretName(name) {
	case "AZURE_POSTGRESQL_CONNECTION_STRING", "TODO_DATABASE_URL":
		c.DatabaseURL = value
	case "AZURE_COSMOS_CONNECTION_STRING":
		c.MongoURL = value
	case "AZURE_COSMOS_DATABASE_NAME":
		c.MongoDatabase = value
	case "API_ALLOW_ORIGINS":
		c.AllowOrigins = strings.Split(value, ",")
	case "API_ENVIRONMENT":
		c.Environment = value
	case "OTEL_EXPORTER_OTLP_ENDPOINT":
		c.TraceEndpoint = value
	case "APPLICATIONINSIGHTS_ROLENAME":
		c.ServiceName = value
	case "TODO_LOG_LEVEL":
		c.LogLevel = value
	default:
		return false
	}
	return true
}
