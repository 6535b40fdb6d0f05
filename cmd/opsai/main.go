// OpsAI - natural-language-driven terminal operations assistant.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/opsai/opsai/internal/host"
	"github.com/opsai/opsai/pkg/config"
	"github.com/opsai/opsai/pkg/deploy"
	"github.com/opsai/opsai/pkg/journal"
	"github.com/opsai/opsai/pkg/llm"
	"github.com/opsai/opsai/pkg/memory"
	"github.com/opsai/opsai/pkg/orchestrator"
	"github.com/opsai/opsai/pkg/prompt"
	"github.com/opsai/opsai/pkg/runbook"
	"github.com/opsai/opsai/pkg/version"
	"github.com/opsai/opsai/pkg/worker"
	"github.com/opsai/opsai/pkg/worker/analyze"
	workerdeploy "github.com/opsai/opsai/pkg/worker/deploy"
	"github.com/opsai/opsai/pkg/worker/git"
	workerhttp "github.com/opsai/opsai/pkg/worker/http"
	"github.com/opsai/opsai/pkg/worker/loganalyzer"
	"github.com/opsai/opsai/pkg/worker/shell"
	"github.com/opsai/opsai/pkg/worker/system"
)

func opsaiHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".opsai"
	}
	return filepath.Join(home, ".opsai")
}

// app bundles the wired dependency graph shared across subcommands.
type app struct {
	cfg       config.OpsAIConfig
	cfgMgr    *config.Manager
	registry  *worker.Registry
	llmClient *llm.Client
	memory    *memory.Store
	journal   *journal.Journal
	runbooks  *runbook.Library
	cliHost   *host.CLI
	shellW    worker.Worker
	httpW     worker.Worker
}

func buildApp() (*app, error) {
	mgr, err := config.NewManager("")
	if err != nil {
		return nil, err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	journalDir := filepath.Join(opsaiHome(), "journal")
	j, err := journal.Open(journalDir)
	if err != nil {
		return nil, fmt.Errorf("opening change journal: %w", err)
	}

	memPath := filepath.Join(opsaiHome(), "memory.json")
	memStore, err := memory.Open(memPath)
	if err != nil {
		return nil, fmt.Errorf("opening session memory: %w", err)
	}

	cachePath, err := analyze.DefaultPath()
	if err != nil {
		return nil, err
	}
	cache, err := analyze.Open(cachePath)
	if err != nil {
		return nil, fmt.Errorf("opening analyze template cache: %w", err)
	}

	runbookDir, err := runbook.DefaultDir()
	if err != nil {
		return nil, err
	}
	runbooks, err := runbook.Load(runbookDir)
	if err != nil {
		return nil, fmt.Errorf("loading runbooks: %w", err)
	}

	llmClient := llm.NewFromConfig(llm.Options{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		MaxTokens: cfg.LLM.MaxTokens,
	})

	cliHost := host.New()

	shellW := shell.New()
	httpW := workerhttp.New(20 * time.Second)
	gitW := git.New(shellW)
	systemW := system.New(j)
	logW := loganalyzer.New(shellW)
	analyzeW := analyze.New(llmClient, shellW, cache)

	deployer := deploy.New(httpW, shellW, llmClient, cliHost)
	deployW := workerdeploy.New(deployer)

	registry := worker.NewRegistry(shellW, httpW, gitW, systemW, logW, analyzeW, deployW)

	return &app{
		cfg:       cfg,
		cfgMgr:    mgr,
		registry:  registry,
		llmClient: llmClient,
		memory:    memStore,
		journal:   j,
		runbooks:  runbooks,
		cliHost:   cliHost,
		shellW:    shellW,
		httpW:     httpW,
	}, nil
}

func (a *app) riskPolicy() orchestrator.RiskPolicy {
	return orchestrator.RiskPolicy{
		MaxRisk:         worker.ParseRiskLevel(a.cfg.Safety.CLIMaxRisk),
		AutoApproveSafe: a.cfg.Safety.AutoApproveSafe,
		ApprovalFloor:   worker.RiskLow,
	}
}

func main() {
	envPath := filepath.Join(opsaiHome(), ".env")
	if err := godotenv.Load(envPath); err != nil {
		// Absence of a local .env is routine (first run, CI); continue
		// with whatever is already in the environment.
		_ = err
	}

	root := &cobra.Command{
		Use:     "opsai",
		Short:   "OpsAI - natural-language-driven terminal operations assistant",
		Version: version.Full(),
	}

	root.AddCommand(newQueryCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newTemplateCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newMemoryCmd())
	root.AddCommand(newChangesCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newQueryCmd() *cobra.Command {
	var dryRun bool
	var autoYes bool
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "query <request>",
		Short: "Execute a natural-language operations request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			a.cliHost.AutoYes = autoYes

			builder := prompt.New(a.registry, a.runbooks)
			policy := a.riskPolicy()
			orch := orchestrator.New(a.registry, a.llmClient, builder, a.memory, a.cliHost, policy).
				WithMaxIterations(maxIterations).
				WithDryRun(dryRun)

			result := orch.Run(cmd.Context(), args[0])

			fmt.Fprintf(os.Stderr, "run %s: %d iteration(s)\n", result.RunID, result.Iterations)
			fmt.Println(result.FinalText)
			if result.Status == orchestrator.StatusIncomplete {
				fmt.Fprintln(os.Stderr, "(iteration budget exhausted; result may be incomplete)")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "simulate execution without side effects")
	cmd.Flags().BoolVarP(&autoYes, "yes", "y", false, "auto-approve actions that would otherwise require confirmation")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 10, "ReAct loop iteration budget")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Manage OpsAI configuration"}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager("")
			if err != nil {
				return err
			}
			cfg, err := mgr.Load()
			if err != nil {
				return err
			}
			fmt.Printf("LLM: model=%s base_url=%s\n", cfg.LLM.Model, cfg.LLM.BaseURL)
			fmt.Printf("Safety: cli_max_risk=%s auto_approve_safe=%t\n", cfg.Safety.CLIMaxRisk, cfg.Safety.AutoApproveSafe)
			fmt.Printf("Audit: log_path=%s retain_days=%d\n", cfg.Audit.LogPath, cfg.Audit.RetainDays)
			fmt.Printf("Config file: %s\n", mgr.Path())
			return nil
		},
	})

	var model, baseURL, apiKey string
	setLLM := &cobra.Command{
		Use:   "set-llm",
		Short: "Update the LLM endpoint configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := config.NewManager("")
			if err != nil {
				return err
			}
			cfg, err := mgr.Load()
			if err != nil {
				return err
			}
			if model != "" {
				cfg.LLM.Model = model
			}
			if baseURL != "" {
				cfg.LLM.BaseURL = baseURL
			}
			if apiKey != "" {
				cfg.LLM.APIKey = apiKey
			}
			if err := mgr.Save(cfg); err != nil {
				return err
			}
			fmt.Println("✓ Configuration saved")
			return nil
		},
	}
	setLLM.Flags().StringVarP(&model, "model", "m", "", "model name")
	setLLM.Flags().StringVarP(&baseURL, "base-url", "u", "", "API endpoint")
	setLLM.Flags().StringVarP(&apiKey, "api-key", "k", "", "API key")
	cmd.AddCommand(setLLM)

	return cmd
}

// newTemplateCmd exposes the runbook library as the original's
// `template list|show|run` commands (SPEC_FULL §C.1: runbooks and task
// templates are the same YAML document in this implementation).
func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "template", Short: "Manage diagnostic runbook templates"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := runbook.DefaultDir()
			if err != nil {
				return err
			}
			lib, err := runbook.Load(dir)
			if err != nil {
				return err
			}
			all := lib.List()
			if len(all) == 0 {
				fmt.Println("No templates found")
				return nil
			}
			for _, rb := range all {
				fmt.Printf("%-20s %d steps  %s\n", rb.Name, len(rb.Steps), rb.Description)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a template's steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := runbook.DefaultDir()
			if err != nil {
				return err
			}
			lib, err := runbook.Load(dir)
			if err != nil {
				return err
			}
			rb, ok := lib.Get(args[0])
			if !ok {
				return fmt.Errorf("template not found: %s", args[0])
			}
			fmt.Printf("Name: %s\nDescription: %s\n\nSteps:\n", rb.Name, rb.Description)
			for i, step := range rb.Steps {
				fmt.Printf("  %d. [%s] %s\n     %s\n", i+1, step.Risk, step.Description, step.Command)
			}
			return nil
		},
	})

	var dryRun bool
	run := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a template's steps in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := runbook.DefaultDir()
			if err != nil {
				return err
			}
			lib, err := runbook.Load(dir)
			if err != nil {
				return err
			}
			rb, ok := lib.Get(args[0])
			if !ok {
				return fmt.Errorf("template not found: %s", args[0])
			}

			shellW := shell.New()
			for i, step := range rb.Steps {
				fmt.Printf("Step %d/%d: %s\n", i+1, len(rb.Steps), step.Description)
				result := shellW.Execute(cmd.Context(), "execute_command", worker.Args{
					"command": worker.String(step.Command),
					"dry_run": worker.Bool(dryRun),
				})
				status := "✓"
				if !result.Success {
					status = "✗"
				}
				fmt.Printf("%s %s\n", status, result.Message)
				if !result.Success {
					return fmt.Errorf("template execution failed at step %d", i+1)
				}
			}
			fmt.Println("✓ Template execution completed successfully")
			return nil
		},
	}
	run.Flags().BoolVarP(&dryRun, "dry-run", "d", false, "simulate execution")
	cmd.AddCommand(run)

	return cmd
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "cache", Short: "Manage cached analyze templates"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List cached analyze templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := analyze.DefaultPath()
			if err != nil {
				return err
			}
			cache, err := analyze.Open(path)
			if err != nil {
				return err
			}
			all := cache.ListAll()
			if len(all) == 0 {
				fmt.Println("No cached templates")
				return nil
			}
			for targetType, tmpl := range all {
				fmt.Printf("%-12s hits=%-4d commands=%d\n", targetType, tmpl.HitCount, len(tmpl.Commands))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <target-type>",
		Short: "Show a cached template's commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := analyze.DefaultPath()
			if err != nil {
				return err
			}
			cache, err := analyze.Open(path)
			if err != nil {
				return err
			}
			commands, ok := cache.Get(args[0])
			if !ok {
				return fmt.Errorf("cache not found for type: %s", args[0])
			}
			for _, c := range commands {
				fmt.Printf("  - %s\n", c)
			}
			return nil
		},
	})

	var force bool
	clear := &cobra.Command{
		Use:   "clear [target-type]",
		Short: "Clear cached analyze templates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := analyze.DefaultPath()
			if err != nil {
				return err
			}
			cache, err := analyze.Open(path)
			if err != nil {
				return err
			}
			targetType := ""
			if len(args) == 1 {
				targetType = args[0]
			}
			if !force {
				fmt.Print("This clears cached analyze templates. Continue? [y/N] ")
				var answer string
				fmt.Scanln(&answer)
				if answer != "y" && answer != "yes" {
					fmt.Println("Cancelled")
					return nil
				}
			}
			var n int
			if targetType == "" {
				n = cache.ClearAll()
			} else {
				n = cache.Clear(targetType)
			}
			fmt.Printf("✓ Cleared %d cached template(s)\n", n)
			return nil
		},
	}
	clear.Flags().BoolVarP(&force, "force", "f", false, "skip confirmation")
	cmd.AddCommand(clear)

	return cmd
}

func newMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "memory", Short: "Inspect session memory"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List remembered facts",
		RunE: func(cmd *cobra.Command, args []string) error {
			memStore, err := memory.Open(filepath.Join(opsaiHome(), "memory.json"))
			if err != nil {
				return err
			}
			for _, e := range memStore.ListAll() {
				fmt.Printf("[%s] %s = %s (hits=%d)\n", e.Category, e.Key, e.Value, e.HitCount)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget <key>",
		Short: "Remove a remembered fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			memStore, err := memory.Open(filepath.Join(opsaiHome(), "memory.json"))
			if err != nil {
				return err
			}
			removed, err := memStore.Forget(args[0])
			if err != nil {
				return err
			}
			if !removed {
				fmt.Printf("No such key: %s\n", args[0])
				return nil
			}
			fmt.Println("✓ Forgotten")
			return nil
		},
	})

	return cmd
}

func newChangesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "changes", Short: "Inspect and roll back journaled changes"}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List journaled changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(filepath.Join(opsaiHome(), "journal"))
			if err != nil {
				return err
			}
			for _, r := range j.List() {
				fmt.Printf("%-10s %-12s %s  %s\n", r.ChangeID, r.ChangeType, r.Timestamp.Format(time.RFC3339), r.Description)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback <change-id>",
		Short: "Roll back a journaled change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(filepath.Join(opsaiHome(), "journal"))
			if err != nil {
				return err
			}
			if err := j.Rollback(args[0]); err != nil {
				return err
			}
			fmt.Println("✓ Rolled back")
			return nil
		},
	})

	return cmd
}
