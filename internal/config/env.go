package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Env is a deployment environment name.
type Env string

const (
	EnvDev   Env = "DEV"
	EnvTest  Env = "TEST"
	EnvProd  Env = "PROD"
	EnvLocal Env = "LOCAL"
)

// ValidEnvs lists the accepted environment names.
var ValidEnvs = []Env{EnvDev, EnvTest, EnvProd, EnvLocal}

// DefaultSchema is the schema synced when none is configured.
const DefaultSchema = "THE"

// InvalidEnvError is returned for an environment name outside ValidEnvs.
type InvalidEnvError struct {
	Env string
}

func (e *InvalidEnvError) Error() string {
	return fmt.Sprintf("the environment provided: %q is invalid, valid values include: %v", e.Env, ValidEnvs)
}

// MissingParamError names the variable a required parameter comes from.
type MissingParamError struct {
	Var string
}

func (e *MissingParamError) Error() string {
	return "missing required parameter: " + e.Var
}

// ParseEnv validates an environment name.
func ParseEnv(s string) (Env, error) {
	v := Env(strings.ToUpper(strings.TrimSpace(s)))
	for _, e := range ValidEnvs {
		if e == v {
			return v, nil
		}
	}
	return "", &InvalidEnvError{Env: s}
}

// Engine selects the variable family connection parameters are read from.
type Engine string

const (
	EngineOracle   Engine = "ORACLE"
	EnginePostgres Engine = "POSTGRES"
)

// ParseEngine maps a command line database name to an Engine.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ORACLE", "ORA":
		return EngineOracle, nil
	case "POSTGRES", "POSTGRESQL", "OC_POSTGRES", "PG", "SPAR":
		return EnginePostgres, nil
	default:
		return "", fmt.Errorf("unsupported database %q (expected ORACLE or POSTGRES)", s)
	}
}

func (e Engine) defaultPort() int {
	if e == EnginePostgres {
		return 5432
	}
	return 1521
}

// ConnectionParameters is an opaque credential bundle for one database.
// Build a fresh value per call; it is never mutated after construction.
type ConnectionParameters struct {
	Username    string
	Password    string
	Host        string
	Port        int
	ServiceName string
	Schema      string

	// vars records which variable each field was read from, for errors.
	vars map[string]string
}

// Validate fails on the first missing field, naming its variable.
func (p ConnectionParameters) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"host", p.Host},
		{"service", p.ServiceName},
		{"user", p.Username},
		{"password", p.Password},
		{"schema", p.Schema},
	}
	for _, f := range fields {
		if f.value == "" {
			return &MissingParamError{Var: p.varName(f.name)}
		}
	}
	if p.Port <= 0 {
		return &MissingParamError{Var: p.varName("port")}
	}
	return nil
}

func (p ConnectionParameters) varName(field string) string {
	if v, ok := p.vars[field]; ok {
		return v
	}
	return field
}

// String omits the password.
func (p ConnectionParameters) String() string {
	return fmt.Sprintf("%s@%s:%d/%s (schema %s)", p.Username, p.Host, p.Port, p.ServiceName, p.Schema)
}

// DBParams reads the parameters of engine in env from
// <ENGINE>_<FIELD>_<ENV> variables. Values may be secret references.
func DBParams(engine Engine, env Env) (ConnectionParameters, error) {
	name := func(field string) string {
		return fmt.Sprintf("%s_%s_%s", engine, field, env)
	}
	vars := map[string]string{
		"host":     name("HOST"),
		"port":     name("PORT"),
		"service":  name("SERVICE"),
		"user":     name("USER"),
		"password": name("PASSWORD"),
		"schema":   name("SCHEMA_TO_SYNC"),
	}
	return readParams(engine, vars, map[string]string{"schema": DefaultSchema})
}

// StructureParams reads the parameters used by the structure commands from
// unsuffixed ORACLE_* variables.
func StructureParams() (ConnectionParameters, error) {
	vars := map[string]string{
		"host":     "ORACLE_HOST",
		"port":     "ORACLE_PORT",
		"service":  firstSet("ORACLE_SERVICE_NAME", "ORACLE_SERVICE"),
		"user":     firstSet("ORACLE_USERNAME", "ORACLE_USER"),
		"password": "ORACLE_PASSWORD",
		"schema":   "ORACLE_SCHEMA",
	}
	return readParams(EngineOracle, vars, map[string]string{"schema": DefaultSchema})
}

func readParams(engine Engine, vars, defaults map[string]string) (ConnectionParameters, error) {
	values := make(map[string]string, len(vars))
	for field, v := range vars {
		val, err := ResolveValue(os.Getenv(v))
		if err != nil {
			return ConnectionParameters{}, fmt.Errorf("resolving %s: %w", v, err)
		}
		if val == "" {
			val = defaults[field]
		}
		values[field] = val
	}

	port := engine.defaultPort()
	if s := values["port"]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return ConnectionParameters{}, fmt.Errorf("invalid %s %q: %w", vars["port"], s, err)
		}
		port = n
	}

	return ConnectionParameters{
		Username:    values["user"],
		Password:    values["password"],
		Host:        values["host"],
		Port:        port,
		ServiceName: values["service"],
		Schema:      strings.ToUpper(values["schema"]),
		vars:        vars,
	}, nil
}

func firstSet(names ...string) string {
	for _, n := range names {
		if os.Getenv(n) != "" {
			return n
		}
	}
	return names[len(names)-1]
}

// ObjectStoreParameters are the credentials of the object store bucket.
type ObjectStoreParameters struct {
	Bucket string
	Host   string
	User   string
	Secret string
}

// ObjectStoreParams reads OBJECT_STORE_<FIELD>_<ENV> variables.
func ObjectStoreParams(env Env) (ObjectStoreParameters, error) {
	read := func(field string) (string, error) {
		v := fmt.Sprintf("OBJECT_STORE_%s_%s", field, env)
		val, err := ResolveValue(os.Getenv(v))
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", v, err)
		}
		if val == "" {
			return "", &MissingParamError{Var: v}
		}
		return val, nil
	}

	var p ObjectStoreParameters
	var err error
	if p.Bucket, err = read("BUCKET"); err != nil {
		return p, err
	}
	if p.Host, err = read("HOST"); err != nil {
		return p, err
	}
	if p.User, err = read("USER"); err != nil {
		return p, err
	}
	if p.Secret, err = read("SECRET"); err != nil {
		return p, err
	}
	return p, nil
}
