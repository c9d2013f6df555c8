package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/advancedsearch/cli/client"
)

var (
	searchFlags    queryFlags
	searchJSONFile string
)

var searchCmd = &cobra.Command{
	Use:   "search RESOURCE_TYPE [QUERY]",
	Short: "Search resources",
	Long: `Search resources of one type and print the matching ids.

RESOURCE_TYPE is one of resources, items, item_sets, media or annotations.
QUERY is an optional query string in bracket syntax; the shorthand flags are
appended to it. With --json the query is read from a JSON file ("-" for stdin)
and sent as the request body.`,
	Example: `  advsearch-cli search items --fulltext rome
  advsearch-cli search items --where "dcterms:title in forum" --or-where "dcterms:subject eq Rome"
  advsearch-cli search media "owner_id=3" --filter "created gte 2020-01-01" -o json
  advsearch-cli search items --json query.json`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: initializeClient,
	RunE:    runSearch,
}

func init() {
	searchFlags.register(searchCmd)
	searchCmd.Flags().StringVar(&searchJSONFile, "json", "", `read the query from a JSON file ("-" for stdin)`)
}

func readJSONQuery(cmd *cobra.Command, path string) (map[string]interface{}, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read query: %w", err)
	}

	body := map[string]interface{}{}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("invalid JSON query: %w", err)
	}
	return body, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	resourceType := args[0]

	var (
		result *client.SearchResult
		err    error
	)
	if searchJSONFile != "" {
		body, readErr := readJSONQuery(cmd, searchJSONFile)
		if readErr != nil {
			return readErr
		}
		result, err = apiClient.SearchJSON(cmd.Context(), resourceType, body)
	} else {
		values, buildErr := searchFlags.build(rawArg(args))
		if buildErr != nil {
			return buildErr
		}
		result, err = apiClient.Search(cmd.Context(), resourceType, values)
	}
	if err != nil {
		return err
	}

	if formatter.Structured() {
		return formatter.Print(result)
	}

	formatter.PrintKeyValue([]string{"Total", "Page", "Per page"}, map[string]string{
		"Total":    strconv.FormatInt(result.Total, 10),
		"Page":     strconv.Itoa(result.Page),
		"Per page": strconv.Itoa(result.PerPage),
	})
	if len(result.IDs) == 0 {
		formatter.PrintSuccess("No matching resources.")
		return nil
	}

	formatter.PrintIDs(result.IDs)
	return nil
}
