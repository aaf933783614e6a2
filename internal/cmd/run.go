package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dosanma1/octobuild/internal/config"
	"github.com/dosanma1/octobuild/internal/pipeline"
	"github.com/dosanma1/octobuild/internal/target"
)

var (
	runConfiguration  string
	runCertPath       string
	runCertPassword   string
	runBranch         string
	runRunNumber      string
	runVaultURL       string
	runVaultAppID     string
	runVaultAppSecret string
	runVaultCertName  string
	runVaultTenantID  string
	runSkip           []string
	runPlanOnly       bool
	runCI             bool
)

var runCmd = &cobra.Command{
	Use:   "run [target]",
	Short: "Run a build target and its dependencies",
	Long: `Run a build target together with everything it depends on.

Each target runs at most once, after all of its dependencies. Targets whose
condition does not hold are skipped. The first failing target stops the run.

Every flag can also be set through OCTOBUILD_<FLAG> (for example
OCTOBUILD_RUN_NUMBER), through the legacy parameter name (RunNumber,
AzureKeyVaultUrl, OCTOVERSION_CurrentBranch), or through a .env file in the
project root.

Examples:
  octobuild run                          # Run Default
  octobuild run Zip                      # Publish and archive
  octobuild run Test --skip Compile      # Test an existing build
  octobuild run --plan                   # Show what would run
  octobuild run --ci --run-number 42     # Server build`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.StringVar(&runConfiguration, config.FlagConfiguration, "", "Configuration to build (default: Debug locally, Release on a build server)")
	f.StringVar(&runCertPath, config.FlagSigningCertificatePath, "", "Pfx certificate used to sign files")
	f.StringVar(&runCertPassword, config.FlagSigningCertificatePassword, "", "Password of the signing certificate")
	f.StringVar(&runBranch, config.FlagBranch, "", "Branch name used to calculate the version (env "+config.EnvBranch+")")
	f.StringVar(&runRunNumber, config.FlagRunNumber, "", "Build server run number appended to pre-release versions")
	f.StringVar(&runVaultURL, config.FlagKeyVaultURL, "", "Key vault holding the signing certificate")
	f.StringVar(&runVaultAppID, config.FlagKeyVaultAppID, "", "Key vault client id")
	f.StringVar(&runVaultAppSecret, config.FlagKeyVaultAppSecret, "", "Key vault client secret")
	f.StringVar(&runVaultCertName, config.FlagKeyVaultCertificateName, "", "Key vault certificate name")
	f.StringVar(&runVaultTenantID, config.FlagKeyVaultTenantID, "", "Key vault tenant id")
	f.StringArrayVar(&runSkip, "skip", nil, "Treat a target as already satisfied (repeatable)")
	f.BoolVar(&runPlanOnly, "plan", false, "Print the execution plan and exit")
	f.BoolVar(&runCI, "ci", false, "Build server mode (signing, Release, run number suffix)")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	goal := pipeline.Default
	if len(args) == 1 {
		goal = args[0]
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}
	if err := config.LoadDotEnv(root); err != nil {
		return err
	}
	settings, err := loadSettings(root)
	if err != nil {
		return err
	}
	params := config.ParametersFromEnv(root, os.LookupEnv, runCI)
	applyRunFlags(cmd, &params)
	if err := params.Validate(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	build := pipeline.New(params, settings, pipeline.Options{
		Out:      os.Stdout,
		Progress: params.IsLocalBuild,
	})
	graph, err := build.Graph()
	if err != nil {
		return err
	}

	if runPlanOnly {
		plan, err := graph.Plan(goal, runSkip...)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "📋 Plan for %s:\n", goal)
		for i, name := range plan {
			fmt.Fprintf(out, "  %d. %s\n", i+1, name)
		}
		return nil
	}

	mode := "🏠 local"
	if !params.IsLocalBuild {
		mode = "🤖 server"
	}
	fmt.Printf("🔨 Running %s [%s, %s]\n", goal, params.Configuration, mode)

	report, err := target.NewExecutor(graph).Run(ctx, goal, runSkip...)
	if report != nil {
		report.Print(os.Stdout)
	}
	if err != nil {
		return err
	}

	fmt.Printf("\n✅ %s succeeded\n", goal)
	return nil
}

// applyRunFlags overrides environment values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, p *config.Parameters) {
	set := func(name string, dst *string, value string) {
		if cmd.Flags().Changed(name) {
			*dst = value
		}
	}
	set(config.FlagConfiguration, &p.Configuration, runConfiguration)
	set(config.FlagSigningCertificatePath, &p.SigningCertificatePath, runCertPath)
	set(config.FlagSigningCertificatePassword, &p.SigningCertificatePassword, runCertPassword)
	set(config.FlagBranch, &p.BranchName, runBranch)
	set(config.FlagRunNumber, &p.RunNumber, runRunNumber)
	set(config.FlagKeyVaultURL, &p.KeyVault.URL, runVaultURL)
	set(config.FlagKeyVaultAppID, &p.KeyVault.AppID, runVaultAppID)
	set(config.FlagKeyVaultAppSecret, &p.KeyVault.AppSecret, runVaultAppSecret)
	set(config.FlagKeyVaultCertificateName, &p.KeyVault.CertificateName, runVaultCertName)
	set(config.FlagKeyVaultTenantID, &p.KeyVault.TenantID, runVaultTenantID)
}
