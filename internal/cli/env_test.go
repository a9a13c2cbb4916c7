package cli_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boxesandglue/restyle/internal/cli"
)

func TestBindEnvVars(t *testing.T) {
	tcs := map[string]struct {
		envVars       map[string]string
		wantLogLevel  string
		wantLogFormat string
		wantNamespace string
		args          []string
	}{
		"environment variables are bound when no args provided": {
			envVars: map[string]string{
				"RESTYLE_LOG_LEVEL":  "debug",
				"RESTYLE_LOG_FORMAT": "json",
				"RESTYLE_NAMESPACE":  "work",
			},
			args:          []string{},
			wantLogLevel:  "debug",
			wantLogFormat: "json",
			wantNamespace: "work",
		},
		"command line args take precedence over environment variables": {
			envVars: map[string]string{
				"RESTYLE_LOG_LEVEL":  "debug",
				"RESTYLE_LOG_FORMAT": "json",
			},
			args:          []string{"--log-level", "error", "--log-format", "text", "--namespace", "cli"},
			wantLogLevel:  "error",
			wantLogFormat: "text",
			wantNamespace: "cli",
		},
		"no environment variables uses defaults": {
			envVars:       map[string]string{},
			args:          []string{},
			wantLogLevel:  "info",
			wantLogFormat: "text",
			wantNamespace: "local",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			for key, val := range tc.envVars {
				t.Setenv(key, val)
			}

			cmd := cli.NewRootCmd()
			cmd.SetArgs(tc.args)

			err := cmd.ParseFlags(tc.args)
			require.NoError(t, err)

			logLevel, err := cmd.Flags().GetString("log-level")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogLevel, logLevel)

			logFormat, err := cmd.Flags().GetString("log-format")
			require.NoError(t, err)
			assert.Equal(t, tc.wantLogFormat, logFormat)

			namespace, err := cmd.Flags().GetString("namespace")
			require.NoError(t, err)
			assert.Equal(t, tc.wantNamespace, namespace)
		})
	}
}

func TestBindEnvVars_Subcommand(t *testing.T) {
	t.Setenv("RESTYLE_HOST", "example.com")

	cmd := cli.NewRootCmd()
	apply, _, err := cmd.Find([]string{"apply"})
	require.NoError(t, err)

	host, err := apply.Flags().GetString("host")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
}

func TestEnvironmentVariableUsageUpdate(t *testing.T) {
	t.Parallel()

	cmd := cli.NewRootCmd()

	logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, logLevelFlag)
	assert.Contains(t, logLevelFlag.Usage, "$RESTYLE_LOG_LEVEL")

	storeFlag := cmd.PersistentFlags().Lookup("store")
	require.NotNil(t, storeFlag)
	assert.Contains(t, storeFlag.Usage, "$RESTYLE_STORE")

	watch, _, err := cmd.Find([]string{"watch"})
	require.NoError(t, err)
	outputFlag := watch.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Contains(t, outputFlag.Usage, "$RESTYLE_OUTPUT")
}
