package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"kestrel/internal/version"
)

const versionTagline = "small bird, sharp schedule"

var versionJSON bool

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "machine-readable output")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the kestrel build fingerprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := resolveColor(cmd); err != nil {
			return err
		}
		info := version.Collect()
		out := cmd.OutOrStdout()
		if versionJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		fmt.Fprintf(out, "kestrel %s (%s)\n", version.Styled(), versionTagline)
		fmt.Fprintf(out, "  commit   %s\n", info.Commit)
		fmt.Fprintf(out, "  built    %s\n", info.Date)
		fmt.Fprintf(out, "  runtime  %s\n", info.Runtime)
		return nil
	},
}
