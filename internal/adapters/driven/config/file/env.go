package file

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvBindings maps environment variables onto config keys.
var EnvBindings = map[string]string{
	"BLS_API_KEY":        "api.key",
	"COLLECTOR_DATA_DIR": "storage.data_dir",
	"COLLECTOR_PG_DSN":   "warehouse.dsn",
	"COLLECTOR_LOG_FILE": "log.file",
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

// ApplyEnv shadows bound config keys with non-empty environment values and
// returns the keys it set.
func (s *ConfigStore) ApplyEnv(lookup func(string) (string, bool)) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var applied []string
	for env, key := range EnvBindings {
		if val, ok := lookup(env); ok && val != "" {
			s.Override(key, val)
			applied = append(applied, key)
		}
	}
	return applied
}
