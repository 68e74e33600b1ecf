package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var validatorsCmd = &cobra.Command{
	Use:   "validators",
	Short: "List the available validators and the fields using them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w := cmd.OutOrStdout()
		for _, name := range validatorNames(cfg) {
			_, _ = fmt.Fprintln(w, name)
		}

		if len(cfg.Form.Fields) == 0 {
			return nil
		}
		_, _ = fmt.Fprintln(w)
		for _, field := range cfg.Form.Fields {
			_, _ = fmt.Fprintf(w, "%s: %s\n", field.Name, strings.Join(field.Spec().Names(), ", "))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validatorsCmd)
}
