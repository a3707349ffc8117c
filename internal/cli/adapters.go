package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/debugsession/internal/debug/adapters"
)

func newAdaptersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "adapters",
		Short: "List the built-in adapter profiles",
		Long: `Lists the adapter profiles debugsession can launch, the id sent in the
DAP initialize request, and whether the default executable is on PATH.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TYPE\tNAME\tADAPTER ID\tEXECUTABLE")
			for _, p := range adapters.NewRegistry().Profiles() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Type(), p.Name(), p.AdapterID(), executable(p))
			}
			return tw.Flush()
		},
	}
}

// executable reports where the profile's default command resolves.
func executable(p adapters.Profile) string {
	cmd, err := p.Command(adapters.Config{})
	if err != nil {
		return "not found"
	}
	return cmd.Path
}
