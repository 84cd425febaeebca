package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	// Flag to confirm pruning without prompting
	confirm bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Prune old bucket usage data",
	Long: `Remove individual bucket usage samples and run records from months that
have already been aggregated into monthly averages. The monthly averages are
kept, as is all data of the current month and of months without averages.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openHistoryReadOnly()
		if err != nil {
			return err
		}
		defer database.Close()

		out := cmd.OutOrStdout()
		if !confirm {
			fmt.Fprint(out, "This will permanently delete individual data points from months that have "+
				"completed and have calculated monthly averages.\n"+
				"The monthly average statistics will be preserved.\n"+
				"Are you sure you want to continue? (y/N): ")

			response, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if r := strings.TrimSpace(response); r != "y" && r != "Y" {
				fmt.Fprintln(out, "Pruning cancelled.")
				return nil
			}
		}

		rowsDeleted, err := database.PruneOldData()
		if err != nil {
			return fmt.Errorf("error pruning old data: %w", err)
		}

		if rowsDeleted == 0 {
			pterm.Info.WithWriter(out).Println("No data to prune. All data points are still needed or no monthly averages have been calculated yet.")
		} else {
			pterm.Success.WithWriter(out).Printfln("Pruned %d data points from completed months.", rowsDeleted)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().BoolVar(&confirm, "confirm", false, "Confirm pruning without prompting")
}
