package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/ivvboard/pkg/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit, and build time of ivvctl.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if ok, err := printJSON(config.GetBuildInfo()); ok {
			return err
		}
		fmt.Println(config.VersionString("ivvctl"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
