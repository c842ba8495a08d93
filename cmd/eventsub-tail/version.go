package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pscheid92/twitchevents/internal/platform/version"
	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(info)
			}
			fmt.Println(info.String())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")
	return cmd
}
