package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// envPrefix starts the name of every environment variable read by restyle.
var envPrefix = strings.ToUpper(cmdName) + "_"

// bindEnvVars lets RESTYLE_<FLAG> environment variables stand in for flags
// that were not given on the command line, on cmd and every subcommand, so
// that for example RESTYLE_HOST fills --host of apply, tree and watch.
// The usage text of each flag names its variable.
func bindEnvVars(cmd *cobra.Command) {
	for _, fs := range []*pflag.FlagSet{cmd.PersistentFlags(), cmd.Flags()} {
		fs.VisitAll(envFlag)
	}
	for _, sub := range cmd.Commands() {
		bindEnvVars(sub)
	}
}

func envFlag(flag *pflag.Flag) {
	name := flagToEnvName(flag.Name)
	if hint := "$" + name; !strings.Contains(flag.Usage, hint) {
		flag.Usage += " (" + hint + ")"
	}
	if flag.Changed {
		return
	}

	val, ok := os.LookupEnv(name)
	if !ok {
		return
	}
	if err := flag.Value.Set(val); err != nil {
		// The default stays in effect.
		slog.Warn("ignore environment variable",
			slog.String("env", name),
			slog.Any("error", fmt.Errorf("--%s: %w", flag.Name, err)),
		)
	}
}

// flagToEnvName maps "max-frame-retries" to "RESTYLE_MAX_FRAME_RETRIES".
func flagToEnvName(flagName string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}
