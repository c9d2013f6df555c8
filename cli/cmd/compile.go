package cmd

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	compileFlags    queryFlags
	compileValidate bool
)

var compileCmd = &cobra.Command{
	Use:   "compile RESOURCE_TYPE [QUERY]",
	Short: "Show the SQL generated for a search",
	Long: `Compile a search without running it and print the generated SQL with its
bound arguments. With --validate the server also parses both statements.`,
	Example: `  advsearch-cli compile items --where "dcterms:creator eq Cicero" --validate
  advsearch-cli compile resources "resource_type[]=items&resource_type[]=media" -o yaml`,
	Args:    cobra.RangeArgs(1, 2),
	PreRunE: initializeClient,
	RunE:    runCompile,
}

func init() {
	compileFlags.register(compileCmd)
	compileCmd.Flags().BoolVar(&compileValidate, "validate", false, "parse the generated SQL on the server")
}

func runCompile(cmd *cobra.Command, args []string) error {
	values, err := compileFlags.build(rawArg(args))
	if err != nil {
		return err
	}

	result, err := apiClient.Compile(cmd.Context(), args[0], values, compileValidate)
	if err != nil {
		return err
	}

	if formatter.Structured() {
		return formatter.Print(result)
	}

	formatter.PrintKeyValue([]string{"Rows", "Dropped", "Page", "Per page"}, map[string]string{
		"Rows":     strconv.Itoa(result.Rows),
		"Dropped":  strconv.Itoa(result.Dropped),
		"Page":     strconv.Itoa(result.Page),
		"Per page": strconv.Itoa(result.PerPage),
	})

	formatter.PrintSuccess("")
	formatter.PrintSQL(result.SQL, result.Args)

	if v := result.Validation; v != nil {
		formatter.PrintSuccess("")
		if v.Valid {
			formatter.PrintSuccess("Valid SQL (fingerprint " + v.Fingerprint + ")")
		} else {
			formatter.PrintError("invalid SQL: " + strings.Join(v.Errors, "; "))
		}
	}
	return nil
}
