package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/piplock/piplock/pkg/manifest"
	"github.com/piplock/piplock/pkg/render"
)

func newRequirementsCmd(env envConfig) *cobra.Command {
	var (
		method string
		opts   render.Options
	)

	cmd := &cobra.Command{
		Use:   "requirements",
		Short: "Render the project lock file as requirements.txt text",
		Long: `Translate the detected lock file into pip requirements format and print it
on standard output, including index configuration and integrity hashes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())

			tr, err := resolveTranslator(method, ".")
			if err != nil {
				return err
			}
			logger.Debugf("rendering requirements with the %s method", tr.Type())

			l, err := tr.Translate(manifest.Options{
				OnlyDirect: opts.OnlyDirect,
				Logger:     logger.Warnf,
			})
			if err != nil {
				return err
			}

			out, err := render.Requirements(l, opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&method, "method", env.Method,
		"translation method (pipenv, poetry, requirements); detected when empty")
	cmd.Flags().BoolVar(&opts.NoHashes, "no-hashes", false, "omit --hash lines")
	cmd.Flags().BoolVar(&opts.NoIndexes, "no-indexes", false, "omit index configuration directives")
	cmd.Flags().BoolVar(&opts.NoVersions, "no-versions", false, "omit version pins")
	cmd.Flags().BoolVar(&opts.OnlyDirect, "only-direct", false,
		"use only dependencies declared directly in the manifest")
	cmd.Flags().BoolVar(&opts.NoDefault, "no-default", false, "omit the default dependency group")
	cmd.Flags().BoolVar(&opts.NoDev, "no-dev", false, "omit the development dependency group")
	cmd.Flags().BoolVar(&opts.NoComments, "no-comments", false, "omit section comment banners")
	return cmd
}
