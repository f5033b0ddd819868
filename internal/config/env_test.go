package config

import (
	"errors"
	"testing"
)

func TestParseEnv(t *testing.T) {
	for _, in := range []string{"DEV", "test", " Prod ", "LOCAL"} {
		if _, err := ParseEnv(in); err != nil {
			t.Errorf("ParseEnv(%q): unexpected error: %v", in, err)
		}
	}

	_, err := ParseEnv("STAGING")
	var envErr *InvalidEnvError
	if !errors.As(err, &envErr) {
		t.Fatalf("expected InvalidEnvError, got %v", err)
	}
	if envErr.Env != "STAGING" {
		t.Errorf("expected env STAGING in error, got %q", envErr.Env)
	}
}

func TestParseEngine(t *testing.T) {
	cases := map[string]Engine{
		"oracle":      EngineOracle,
		"ORA":         EngineOracle,
		"postgres":    EnginePostgres,
		"OC_POSTGRES": EnginePostgres,
		"spar":        EnginePostgres,
	}
	for in, want := range cases {
		got, err := ParseEngine(in)
		if err != nil {
			t.Fatalf("ParseEngine(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseEngine(%q) = %s, expected %s", in, got, want)
		}
	}
	if _, err := ParseEngine("mysql"); err == nil {
		t.Error("expected error for mysql")
	}
}

func setOracleDev(t *testing.T) {
	t.Setenv("ORACLE_HOST_DEV", "ora.dev")
	t.Setenv("ORACLE_PORT_DEV", "1522")
	t.Setenv("ORACLE_SERVICE_DEV", "dbdev")
	t.Setenv("ORACLE_USER_DEV", "proxy")
	t.Setenv("ORACLE_PASSWORD_DEV", "pw")
	t.Setenv("ORACLE_SCHEMA_TO_SYNC_DEV", "")
}

func TestDBParams(t *testing.T) {
	setOracleDev(t)

	p, err := DBParams(EngineOracle, EnvDev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.Host != "ora.dev" || p.Port != 1522 || p.ServiceName != "dbdev" {
		t.Errorf("unexpected params: %+v", p)
	}
	if p.Schema != DefaultSchema {
		t.Errorf("expected schema to default to %s, got %s", DefaultSchema, p.Schema)
	}
}

func TestDBParamsSecretReference(t *testing.T) {
	setOracleDev(t)
	t.Setenv("DEV_DB_PASSWORD", "from-ref")
	t.Setenv("ORACLE_PASSWORD_DEV", "${ENV:DEV_DB_PASSWORD}")

	p, err := DBParams(EngineOracle, EnvDev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Password != "from-ref" {
		t.Errorf("expected resolved password, got %q", p.Password)
	}
}

func TestDBParamsMissing(t *testing.T) {
	setOracleDev(t)
	t.Setenv("ORACLE_HOST_DEV", "")

	p, err := DBParams(EngineOracle, EnvDev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = p.Validate()
	var missing *MissingParamError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingParamError, got %v", err)
	}
	if missing.Var != "ORACLE_HOST_DEV" {
		t.Errorf("expected ORACLE_HOST_DEV, got %s", missing.Var)
	}
}

func TestDBParamsInvalidPort(t *testing.T) {
	setOracleDev(t)
	t.Setenv("ORACLE_PORT_DEV", "abc")
	if _, err := DBParams(EngineOracle, EnvDev); err == nil {
		t.Error("expected error for non numeric port")
	}
}

func TestDBParamsPostgresDefaultPort(t *testing.T) {
	t.Setenv("POSTGRES_HOST_LOCAL", "localhost")
	t.Setenv("POSTGRES_PORT_LOCAL", "")
	p, err := DBParams(EnginePostgres, EnvLocal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Port != 5432 {
		t.Errorf("expected default port 5432, got %d", p.Port)
	}
}

func TestStructureParams(t *testing.T) {
	t.Setenv("ORACLE_HOST", "ora")
	t.Setenv("ORACLE_PORT", "")
	t.Setenv("ORACLE_SERVICE_NAME", "")
	t.Setenv("ORACLE_SERVICE", "svc")
	t.Setenv("ORACLE_USERNAME", "me")
	t.Setenv("ORACLE_PASSWORD", "pw")

	p, err := StructureParams()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ServiceName != "svc" || p.Username != "me" || p.Port != 1521 {
		t.Errorf("unexpected params: %+v", p)
	}
	if p.String() == "" || p.Password == "" {
		t.Error("expected populated params")
	}
}

func TestObjectStoreParams(t *testing.T) {
	t.Setenv("OBJECT_STORE_BUCKET_TEST", "bucket")
	t.Setenv("OBJECT_STORE_HOST_TEST", "nrs.example.com")
	t.Setenv("OBJECT_STORE_USER_TEST", "user")
	t.Setenv("OBJECT_STORE_SECRET_TEST", "secret")

	p, err := ObjectStoreParams(EnvTest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Bucket != "bucket" || p.Host != "nrs.example.com" {
		t.Errorf("unexpected params: %+v", p)
	}

	t.Setenv("OBJECT_STORE_SECRET_TEST", "")
	_, err = ObjectStoreParams(EnvTest)
	var missing *MissingParamError
	if !errors.As(err, &missing) || missing.Var != "OBJECT_STORE_SECRET_TEST" {
		t.Errorf("expected missing OBJECT_STORE_SECRET_TEST, got %v", err)
	}
}
