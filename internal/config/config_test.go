package config

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/juju/errors"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(cfg, Default()) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Backend = BackendMongo
	cfg.MongoURL = "mongodb://localhost:27017"
	cfg.AllowOrigins = []string{"http://localhost:3000"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, cfg) {
		t.Fatalf("expected %+v, got %+v", cfg, loaded)
	}
}

func TestOriginList(t *testing.T) {
	cfg := Default()
	cfg.AllowOrigins = []string{"http://localhost:3000", " ", "http://other:100 "}
	expected := []string{"https://portal.azure.com", "https://ms.portal.azure.com", "http://localhost:3000", "http://other:100"}
	if got := cfg.OriginList(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}

	cfg.Environment = EnvironmentDevelop
	if got := cfg.OriginList(); !reflect.DeepEqual(got, []string{"*"}) {
		t.Fatalf("expected wildcard in develop, got %v", got)
	}
}

func TestApplySecretNames(t *testing.T) {
	cfg := Default()
	if !cfg.Apply("AZURE-COSMOS-CONNECTION-STRING", "mongodb://secret") {
		t.Fatalf("expected cosmos connection string to be known")
	}
	if !cfg.Apply("azure-postgresql-connection-string", "postgres://secret") {
		t.Fatalf("expected postgres connection string to be known")
	}
	if cfg.Apply("unrelated-secret", "x") {
		t.Fatalf("expected unknown secret to be ignored")
	}
	if cfg.MongoURL != "mongodb://secret" || cfg.DatabaseURL != "postgres://secret" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected missing database url to be invalid, got %v", err)
	}
	cfg.DatabaseURL = ":memory:"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	cfg.Backend = "cassandra"
	if err := cfg.Validate(); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected unknown backend to be invalid, got %v", err)
	}
	cfg.Backend = BackendMongo
	if err := cfg.Validate(); !errors.Is(err, errors.NotValid) {
		t.Fatalf("expected missing mongo url to be invalid, got %v", err)
	}
}
