package cmd

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/advancedsearch/cli/output"
)

var propertiesCmd = &cobra.Command{
	Use:     "properties",
	Aliases: []string{"props"},
	Short:   "List the properties known to the server",
	Args:    cobra.NoArgs,
	PreRunE: initializeClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		props, err := apiClient.Properties(cmd.Context())
		if err != nil {
			return err
		}

		if formatter.Structured() {
			return formatter.Print(props)
		}

		rows := make([][]string, 0, len(props))
		for _, p := range props {
			rows = append(rows, []string{strconv.Itoa(p.ID), p.Term, p.Label})
		}
		formatter.PrintTable(output.TableData{Headers: []string{"ID", "Term", "Label"}, Rows: rows})
		return nil
	},
}

var propertiesInvalidateCmd = &cobra.Command{
	Use:     "invalidate",
	Short:   "Make every server instance reload its properties",
	Args:    cobra.NoArgs,
	PreRunE: initializeClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := apiClient.InvalidateProperties(cmd.Context()); err != nil {
			return err
		}
		formatter.PrintSuccess("Property cache invalidated.")
		return nil
	},
}

var resourceTypesCmd = &cobra.Command{
	Use:     "resource-types",
	Short:   "List the searchable resource types",
	Args:    cobra.NoArgs,
	PreRunE: initializeClient,
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := apiClient.ResourceTypes(cmd.Context())
		if err != nil {
			return err
		}

		if formatter.Structured() {
			return formatter.Print(types)
		}

		rows := make([][]string, 0, len(types))
		for _, t := range types {
			rows = append(rows, []string{t})
		}
		formatter.PrintTable(output.TableData{Headers: []string{"Resource type"}, Rows: rows})
		return nil
	},
}

func init() {
	propertiesCmd.AddCommand(propertiesInvalidateCmd)
}
