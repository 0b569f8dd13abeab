package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"excel2jira/api"
	"excel2jira/config"
	"excel2jira/services"
	"excel2jira/utils"
)

var v = config.New()

var rootCmd = &cobra.Command{
	Use:   "excel2jira",
	Short: "Create Jira issues from a planning spreadsheet",
	Long: `excel2jira reads the quarterly planning sheet (.xlsx, .csv or a Google Sheets URL)
and creates one Jira issue per row. The "Issue type" column selects the mapping:
Epic, Project, QBV or On-going. Existing issues are skipped unless --update is given.

Credentials are read from JIRA_URL, JIRA_EMAIL and JIRA_API_TOKEN (a .env file is loaded if present).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.SetVerbose(v.GetBool(config.KeyVerbose))
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addPersistentFlags()
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(authCheckCmd())
	rootCmd.AddCommand(matchUserCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		utils.LogError("%v", err)
		stop()
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file (default ./excel2jira.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().Float64("match-threshold", 0, "minimum name similarity for user matching (default 0.6)")
	_ = v.BindPFlag(config.KeyConfigFile, rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag(config.KeyVerbose, rootCmd.PersistentFlags().Lookup("verbose"))
	_ = v.BindPFlag(config.KeyMatchThreshold, rootCmd.PersistentFlags().Lookup("match-threshold"))
}

// bindFlags maps flag names to config keys. Flag defaults stay zero so the
// config defaults apply when a flag is not given.
func bindFlags(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Import the spreadsheet rows into Jira",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context())
		},
	}

	cmd.Flags().String("data", "", "spreadsheet path (.xlsx, .csv) or Google Sheets URL")
	cmd.Flags().String("project", "", "Jira project key for Epic, Project and On-going rows (default ITDVPS)")
	cmd.Flags().String("quarter", "", "planning quarter Q1..Q4 (default: next quarter)")
	cmd.Flags().Int("year", 0, "planning year (default: year of the planning quarter)")
	cmd.Flags().Bool("update", false, "update issues that already exist instead of skipping them")
	cmd.Flags().Bool("fill-empty", false, "with --update, only set fields that are empty on the existing issue")
	cmd.Flags().String("sheet", "", "worksheet name, or A1 range for Google Sheets (default: first sheet)")
	cmd.Flags().String("credentials", "", "Google service account JSON file (Google Sheets only)")
	_ = cmd.MarkFlagRequired("data")

	bindFlags(cmd, map[string]string{
		"data":        config.KeyData,
		"project":     config.KeyProject,
		"quarter":     config.KeyQuarter,
		"year":        config.KeyYear,
		"update":      config.KeyUpdate,
		"fill-empty":  config.KeyFillEmpty,
		"sheet":       config.KeySheet,
		"credentials": config.KeyCredentials,
	})

	return cmd
}

func authCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth-check",
		Short: "Verify the Jira credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			utils.LogInfo("Checking Jira authentication...")
			me, err := api.NewJiraClient(cfg).CheckAuth(cmd.Context())
			if err != nil {
				return authError(err)
			}

			utils.LogInfo("Authenticated as %s <%s> on %s", me.DisplayName, me.EmailAddress, cfg.JiraURL)
			return nil
		},
	}
}

func matchUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match-user <name>",
		Short: "Show which Jira user a name resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := api.NewJiraClient(cfg)
			resolver := services.NewUserResolver(client, services.SimilarityMatcher{Threshold: cfg.MatchThreshold})

			user, score, err := resolver.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %s (similarity %.2f)\n", user.DisplayName, user.EmailAddress, user.AccountID, score)
			return nil
		},
	}
}

func runImport(ctx context.Context) error {
	startTime := time.Now()
	defer utils.TrackTime(startTime, "excel2jira run")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	return importRows(ctx, cfg, os.Stdout)
}

// importRows runs the startup checks and the import, then prints the summary
// to out. Row failures are reported, not returned. Startup failures and an
// interrupted run are.
func importRows(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if cfg.QuarterDefault {
		utils.LogInfo("No quarter given, using next quarter %s %d", cfg.Quarter, cfg.Year)
	} else {
		utils.LogInfo("Planning period %s %d", cfg.Quarter, cfg.Year)
	}

	rows, err := services.NewSpreadsheetReader(cfg).ReadRows(ctx)
	if err != nil {
		return err
	}
	utils.LogInfo("Read %d rows from %s", len(rows), cfg.DataPath)

	client := api.NewJiraClient(cfg)

	utils.LogInfo("Checking Jira authentication...")
	me, err := client.CheckAuth(ctx)
	if err != nil {
		return authError(err)
	}
	utils.LogInfo("Authenticated as %s", me.DisplayName)

	project, err := client.GetProject(ctx, cfg.ProjectKey)
	if err != nil {
		return fmt.Errorf("project %s is not accessible: %w", cfg.ProjectKey, err)
	}
	utils.LogInfo("Target project: %s (%s)", project.Name, project.Key)

	options, err := services.NewFieldCatalog(cfg, client).Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolve field values: %w", err)
	}

	importer := services.NewImporter(
		cfg,
		client,
		services.NewFieldMapper(cfg, options),
		services.NewUserResolver(client, services.SimilarityMatcher{Threshold: cfg.MatchThreshold}),
	)

	summary := importer.Run(ctx, rows)
	services.PrintSummary(out, summary)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("import interrupted: %w", err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(v, time.Now())
	if err != nil {
		var missing *config.MissingEnvError
		if errors.As(err, &missing) {
			utils.LogError("Set the variables in the environment or in a .env file")
		}
		return nil, err
	}
	return cfg, nil
}

func authError(err error) error {
	var remote *api.RemoteError
	if errors.As(err, &remote) && remote.Unauthorized() {
		utils.LogError("Check JIRA_EMAIL and JIRA_API_TOKEN")
	}
	return fmt.Errorf("jira authentication failed: %w", err)
}
