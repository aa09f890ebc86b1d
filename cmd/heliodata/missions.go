package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"heliodata/pkg/archive"
	"heliodata/pkg/ui"
)

// missionsCmd represents the missions command
var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "List known missions and their products",
	Long: `List the missions heliodata can download, the identity archive each one
uses, and its products. Missions without a URL template need one set under
missions.<name>.url_template in the config file before they can be fetched.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}

		var rows [][]string
		for _, m := range archive.All(cfg.Missions) {
			ready := "yes"
			if m.URLTemplate == "" {
				ready = "needs url_template"
			}
			rows = append(rows, []string{m.Name, m.Archive, strings.Join(m.Products, ","), ready})
		}
		ui.PrintTable([]string{"mission", "archive", "products", "ready"}, rows)

		fmt.Println()
		fmt.Println(ui.Dim("STEREO-B data ends on 2014-10-01; later samples are recorded as not available."))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(missionsCmd)
}
