package cli

import (
	"context"
	stderrors "errors"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/piplock/piplock/pkg/buildinfo"
	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/manifest"
	"github.com/piplock/piplock/pkg/manifest/pipenv"
	"github.com/piplock/piplock/pkg/manifest/piptools"
	"github.com/piplock/piplock/pkg/manifest/poetry"
)

// Execute runs the piplock CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext. Flag defaults come from PIPLOCK_* environment variables
// resolved once at startup.
func Execute(ctx context.Context) error {
	var verbose bool
	env := loadEnvConfig()

	root := &cobra.Command{
		Use:   "piplock",
		Short: "piplock installs Python dependencies from lock files",
		Long: `piplock is a lightweight pip wrapper that installs Python dependencies from
Pipenv, Poetry, or pip-tools lock files without performing its own dependency
resolution and without managing virtual environments.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newInstallCmd(env))
	root.AddCommand(newRequirementsCmd(env))

	err := root.ExecuteContext(ctx)
	if err != nil && !stderrors.Is(err, context.Canceled) {
		printError(os.Stderr, "%s", errors.UserMessage(err))
	}
	return err
}

// translators lists the supported ecosystems in detection order. Pipenv wins
// over Poetry when both lock files are present, matching the method names
// accepted by --method.
func translators() []manifest.Translator {
	return []manifest.Translator{
		pipenv.Translator{},
		poetry.Translator{},
		piptools.Translator{},
	}
}

// resolveTranslator returns the translator for an explicit method name, or
// detects one from the lock files present in dir when method is empty.
func resolveTranslator(method, dir string) (manifest.Translator, error) {
	if method == "" {
		return manifest.Detect(dir, translators()...)
	}
	for _, t := range translators() {
		if t.Type() == method {
			return t, nil
		}
	}
	return nil, errors.New(errors.ErrCodeArguments,
		"unknown installation method %q (supported: pipenv, poetry, requirements)", method)
}
