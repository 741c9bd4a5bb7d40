// Package cmd wires the cobra/viper CLI surface onto the reconciliation
// engine, in the same shape the teacher's own root command uses: a single
// persistent-flag setup pass in init/initConfig, then one Run body that
// drives the pipeline end to end.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stelligent/cumulogenesis/internal/config"
	"github.com/stelligent/cumulogenesis/internal/config/yamldoc"
	"github.com/stelligent/cumulogenesis/internal/converge"
	"github.com/stelligent/cumulogenesis/internal/differ"
	"github.com/stelligent/cumulogenesis/internal/loader"
	"github.com/stelligent/cumulogenesis/internal/logs"
	"github.com/stelligent/cumulogenesis/internal/message"
	"github.com/stelligent/cumulogenesis/internal/orgmodel"
	"github.com/stelligent/cumulogenesis/internal/provider/awsorg"
	"github.com/stelligent/cumulogenesis/internal/validator"
)

// Exit codes, per spec.md §6.
const (
	exitOK             = 0
	exitInvalidConfig  = 2
	exitProviderError  = 3
	exitConvergeFailed = 4
)

var (
	cfgFile            string
	configFile         string
	profileFlag        string
	convergeFlag       bool
	dryRunReportFile   string
	convergeReportFile string
	logLevelFlag       string
	quietFlag          bool
	noColorFlag        bool
	silentFlag         bool
)

var rootCmd = &cobra.Command{
	Use:   "cumulogenesis",
	Short: "cumulogenesis reconciles a declared AWS Organizations layout against the live organization.",
	RunE:  runReconcile,
}

// Execute runs the root command, translating a returned error into the
// matching process exit code instead of cobra's default of 1 for
// everything.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	if hinted, ok := err.(*exitHinted); ok {
		return hinted.code
	}
	return exitProviderError
}

// exitHinted lets a command body attach a specific exit code to an error
// without the cmd package needing to type-switch every sentinel the engine
// can return.
type exitHinted struct {
	code int
	err  error
}

func (e *exitHinted) Error() string { return e.err.Error() }
func (e *exitHinted) Unwrap() error { return e.err }

func hintExit(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitHinted{code: code, err: err}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "CLI config file (default is $HOME/.cumulogenesis.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quietFlag, "quiet", false, "suppress user messages")
	rootCmd.PersistentFlags().BoolVar(&noColorFlag, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&silentFlag, "silent", false, "suppress all messages except critical errors")

	rootCmd.Flags().StringVar(&configFile, "config-file", "", "declared organization document (required)")
	rootCmd.Flags().StringVar(&profileFlag, "profile", "", "AWS profile override, takes precedence over the document's provisioner.profile")
	rootCmd.Flags().BoolVar(&convergeFlag, "converge", false, "apply the plan instead of only reporting it")
	rootCmd.Flags().StringVar(&dryRunReportFile, "dry-run-report-file", "", "write the computed plan as YAML to this file")
	rootCmd.Flags().StringVar(&convergeReportFile, "converge-report-file", "", "write the convergence change report as YAML to this file (requires --converge)")
	rootCmd.MarkFlagRequired("config-file")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".cumulogenesis")
	}
	viper.AutomaticEnv()
	viper.SetEnvPrefix("CUMULOGENESIS")
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	logs.ConfigureDefaults(logLevelFlag)
	message.SetQuiet(quietFlag)
	message.SetNoColor(noColorFlag)
	message.SetSilent(silentFlag)
	message.Banner()
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	message.Section("load")
	raw, err := os.ReadFile(configFile)
	if err != nil {
		return hintExit(exitInvalidConfig, fmt.Errorf("read config file: %w", err))
	}
	doc, err := yamldoc.Decode(raw)
	if err != nil {
		return hintExit(exitInvalidConfig, fmt.Errorf("parse config file: %w", err))
	}
	declared, err := config.Load(doc)
	if err != nil {
		return hintExit(exitInvalidConfig, err)
	}

	message.Section("validate")
	if err := validator.RaiseIfInvalid(declared); err != nil {
		return hintExit(exitInvalidConfig, err)
	}
	message.Success("declared organization is valid")

	clientCfg, err := awsorg.ResolveConfig(declared.Provisioner, profileFlag)
	if err != nil {
		return hintExit(exitInvalidConfig, err)
	}
	client, err := awsorg.New(ctx, clientCfg)
	if err != nil {
		return hintExit(exitProviderError, err)
	}

	message.Section("discover")
	actual := orgmodel.New(declared.RootAccountID, orgmodel.SourceActual)
	if err := loader.New(client).Load(ctx, actual); err != nil {
		return hintExit(exitProviderError, err)
	}

	message.Section("diff")
	plan := differ.Diff(declared, actual)
	if !plan.Problems.Empty() {
		message.Warning("plan carries problems:\n%s", plan.Problems.String())
	}
	if dryRunReportFile != "" {
		if err := writePlanReport(plan, dryRunReportFile); err != nil {
			return hintExit(exitProviderError, err)
		}
	}
	if plan.Empty() {
		message.Success("organization already matches the declared document")
		return nil
	}

	if !convergeFlag {
		message.Info("plan computed; rerun with --converge to apply it")
		return nil
	}

	message.Section("converge")
	report, err := converge.New(client).Converge(ctx, plan, declared, actual)
	if convergeReportFile != "" {
		if writeErr := writeChangeReport(report, convergeReportFile); writeErr != nil {
			message.Error("writing converge report: %s", writeErr)
		}
	}
	if err != nil {
		return hintExit(exitConvergeFailed, err)
	}
	if !report.Problems.Empty() {
		message.Warning("convergence reported problems:\n%s", report.Problems.String())
	}
	message.Success("convergence complete")
	return nil
}

func writePlanReport(plan *differ.Plan, path string) error {
	m := yamldoc.NewMapping()
	if plan.Organization != nil {
		m.SetString("organization", string(plan.Organization.Action))
	}
	m.SetStringSlice("policies", namesOf(len(plan.Policies), func(i int) string { return plan.Policies[i].Name }))
	m.SetStringSlice("orgunits", namesOf(len(plan.OrgUnits), func(i int) string { return plan.OrgUnits[i].Name }))
	m.SetStringSlice("accounts", namesOf(len(plan.Accounts), func(i int) string { return plan.Accounts[i].Name }))
	b, err := m.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeChangeReport(report *converge.ChangeReport, path string) error {
	m := yamldoc.NewMapping()
	if report.Organization != nil {
		m.SetString("organization", string(report.Organization.Change))
	}
	m.SetStringSlice("policies", namesOf(len(report.Policies), func(i int) string { return report.Policies[i].Name }))
	m.SetStringSlice("orgunits", namesOf(len(report.OrgUnits), func(i int) string { return report.OrgUnits[i].Name }))
	m.SetStringSlice("accounts", namesOf(len(report.Accounts), func(i int) string { return report.Accounts[i].Name }))
	b, err := m.Encode()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func namesOf(n int, at func(int) string) []string {
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = at(i)
	}
	return out
}
