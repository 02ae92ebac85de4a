package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/piplock/piplock/pkg/errors"
	"github.com/piplock/piplock/pkg/installer"
	"github.com/piplock/piplock/pkg/lock"
	"github.com/piplock/piplock/pkg/manifest"
)

// hashVerifier is implemented by translators whose lock carries a digest of
// the source manifest, checked in deploy mode before anything installs.
type hashVerifier interface {
	VerifyHash(opts manifest.Options, l *lock.Lock) error
}

func newInstallCmd(env envConfig) *cobra.Command {
	var (
		deploy  bool
		dev     bool
		method  string
		pipBin  string
		noWrite bool
		noPrint bool
	)

	cmd := &cobra.Command{
		Use:   "install [flags] [-- pip-args...]",
		Short: "Install dependencies from the project lock file",
		Long: `Install dependencies through pip, one package at a time with dependency
resolution disabled, exactly as pinned in the detected lock file. Arguments
after -- are passed through to every pip invocation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd.Context(), installConfig{
				Deploy:  deploy,
				Dev:     dev,
				Method:  method,
				PipBin:  pipBin,
				NoWrite: noWrite,
				NoPrint: noPrint,
				PipArgs: args,
			})
		},
	}

	cmd.Flags().BoolVar(&deploy, "deploy", env.Deploy,
		"verify the lock file against the manifest and the Python version before installing")
	cmd.Flags().BoolVar(&dev, "dev", env.Dev, "install development dependencies as well")
	cmd.Flags().StringVar(&method, "method", env.Method,
		"installation method (pipenv, poetry, requirements); detected when empty")
	cmd.Flags().StringVar(&pipBin, "pip-bin", env.PipBin, "pip executable to invoke")
	cmd.Flags().BoolVar(&noWrite, "no-lockfile-write", env.NoLockfileWrite,
		"do not write the converted Pipfile.lock for poetry/requirements methods")
	cmd.Flags().BoolVar(&noPrint, "no-lockfile-print", env.NoLockfilePrint,
		"do not print the converted Pipfile.lock to stderr")
	return cmd
}

type installConfig struct {
	Deploy  bool
	Dev     bool
	Method  string
	PipBin  string
	NoWrite bool
	NoPrint bool
	PipArgs []string

	// Dir, Runner, and Stderr default to the working directory, a real pip
	// process, and os.Stderr when left zero.
	Dir    string
	Runner installer.Runner
	Stderr io.Writer
}

func runInstall(ctx context.Context, cfg installConfig) error {
	logger := loggerFromContext(ctx)

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}
	stderr := cfg.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	runner := cfg.Runner
	if runner == nil {
		runner = &installer.ExecRunner{Bin: cfg.PipBin}
	}

	tr, err := resolveTranslator(cfg.Method, dir)
	if err != nil {
		return err
	}
	logger.Debugf("installing with the %s method", tr.Type())

	mopts := manifest.Options{Dir: dir, Logger: logger.Warnf}
	iopts := installer.Options{
		Runner:  runner,
		Dev:     cfg.Dev,
		PipArgs: cfg.PipArgs,
		Logger:  logger.Infof,
	}

	l, err := tr.Translate(mopts)
	if err != nil {
		// A requirements file that fails the strict-lock policy downgrades
		// to a direct pip run with resolution enabled instead of aborting.
		if errors.Is(err, errors.ErrCodeNotLocked) && tr.Type() == "requirements" {
			printWarning(stderr, "%s", errors.UserMessage(err))
			printWarning(stderr,
				"the requirements file is not fully locked, installing without integrity verification")
			path, findErr := manifest.FindFile(dir, tr.LockFile())
			if findErr != nil {
				return findErr
			}
			return installer.InstallUnlocked(ctx, path, iopts)
		}
		return err
	}

	if cfg.Deploy {
		if v, ok := tr.(hashVerifier); ok {
			if err := v.VerifyHash(mopts, l); err != nil {
				return err
			}
		}
		if err := installer.VerifyPythonVersion(ctx, l.PythonVersion, iopts); err != nil {
			return err
		}
	}

	if err := installer.Install(ctx, l, iopts); err != nil {
		return err
	}

	// Poetry and requirements installs leave a Pipfile.lock behind so the
	// resolved state is inspectable in the Pipenv format.
	if tr.Type() != "pipenv" {
		return emitPipfileLock(l, cfg.NoWrite, cfg.NoPrint)
	}
	return nil
}

func emitPipfileLock(l *lock.Lock, noWrite, noPrint bool) error {
	if noWrite && noPrint {
		return nil
	}
	data, err := l.MarshalPipfileLock()
	if err != nil {
		return errors.Wrap(errors.ErrCodeRequirements, err, "serializing Pipfile.lock")
	}
	if !noPrint {
		lockBanner(os.Stderr, data)
	}
	if !noWrite {
		if err := os.WriteFile("Pipfile.lock", data, 0o644); err != nil {
			return errors.Wrap(errors.ErrCodeFileRead, err, "writing Pipfile.lock")
		}
	}
	return nil
}
