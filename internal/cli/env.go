package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

// EnvPrefix namespaces the environment variables read by LoadFromEnv.
// Remember the prefix RESTARTCHECK_!
const EnvPrefix = "RESTARTCHECK"

// LoadFromEnv fills every flag the user did not set explicitly from the
// matching RESTARTCHECK_* environment variable, so credentials stay out of
// process listings. A .env file in the working directory is loaded first
// when present.
func LoadFromEnv(fs *flag.FlagSet) error {
	_ = godotenv.Load()

	var firstErr error
	fs.VisitAll(func(f *flag.Flag) {
		if f.Changed {
			return
		}
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		value, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		if err := fs.Set(f.Name, value); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", name, err)
		}
	})
	return firstErr
}
