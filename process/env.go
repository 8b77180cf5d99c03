package process

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/glossd/fetch"
	"github.com/glossd/unsealer/common"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// EnvFromConfig turns a decrypted JSON object into environment variables.
// Keys are upper-cased. Strings are taken as they are, any other value
// becomes its compact JSON text.
func EnvFromConfig(config string) (map[string]string, error) {
	fields, err := fetch.Unmarshal[map[string]json.RawMessage](config)
	if err != nil {
		return nil, errors.Wrap(err, "config must be a JSON object")
	}
	if fields == nil {
		return nil, errors.New("config must be a JSON object, got null")
	}
	env := make(map[string]string, len(fields))
	for k, raw := range fields {
		env[strings.ToUpper(k)] = envValue(raw)
	}
	return env, nil
}

func envValue(raw json.RawMessage) string {
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ReadEnvFile reads a .env file. An empty path yields no variables.
func ReadEnvFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading env file %s", path)
	}
	return env, nil
}

// BuildEnv merges the parent environment with the given layers, later layers
// win. The unsealer's own variables are dropped from the parent so keys
// never reach the command. The result is sorted by name.
func BuildEnv(parent []string, layers ...map[string]string) []string {
	merged := map[string]string{}
	for _, kv := range parent {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || slices.Contains(common.OwnEnvVars, k) {
			continue
		}
		merged[k] = v
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+merged[k])
	}
	return env
}
