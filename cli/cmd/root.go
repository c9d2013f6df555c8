// Package cmd provides the Cobra commands for the advsearch CLI.
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fluxbase-eu/advancedsearch/cli/client"
	"github.com/fluxbase-eu/advancedsearch/cli/output"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	serverURL string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool
	timeout   time.Duration

	// Shared across commands
	apiClient *client.Client
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "advsearch-cli",
	Short: "advsearch CLI - Query an advsearch server",
	Long: `advsearch CLI runs searches against an advsearch server and shows the
SQL it generates.

Queries use the same bracket syntax as the HTTP API:
  advsearch-cli search items "fulltext_search=rome&property[0][property]=dcterms:title&property[0][type]=in&property[0][text]=forum"

or the --where shorthand:
  advsearch-cli search items --where "dcterms:title in forum" --fulltext rome

The server defaults to http://localhost:8080 and can be set with --server
or ADVSEARCH_SERVER.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ~/.advsearch/cli.yaml)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "",
		"advsearch server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second,
		"request timeout")

	viper.SetEnvPrefix("ADVSEARCH")
	_ = viper.BindEnv("server") // ADVSEARCH_SERVER
	_ = viper.BindEnv("debug")  // ADVSEARCH_DEBUG
	_ = viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.SetDefault("server", "http://localhost:8080")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(propertiesCmd)
	rootCmd.AddCommand(resourceTypesCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME/.advsearch")
		viper.SetConfigName("cli")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// initializeClient sets up the API client for commands that need it
func initializeClient(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return err
	}
	formatter = output.NewFormatter(format, noHeaders, quiet)
	formatter.Writer = cmd.OutOrStdout()
	formatter.ErrWriter = cmd.ErrOrStderr()

	apiClient = client.NewClient(viper.GetString("server"),
		client.WithDebug(viper.GetBool("debug"), cmd.ErrOrStderr()),
		client.WithTimeout(timeout),
	)
	return nil
}
