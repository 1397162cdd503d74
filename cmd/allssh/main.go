package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codexnull/allssh/internal/config"
	"github.com/codexnull/allssh/internal/errdefs"
	"github.com/codexnull/allssh/internal/executor"
	"github.com/codexnull/allssh/internal/groups"
	"github.com/codexnull/allssh/internal/logging"
	"github.com/codexnull/allssh/internal/probe"
	"github.com/codexnull/allssh/internal/render"
	"github.com/codexnull/allssh/internal/resolver"
)

var (
	// Build-time variables (set via -ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	// Global configuration
	cfg *config.Config

	// CLI flags
	hosts       string
	groupsFile  string
	client      string
	user        string
	insecure    bool
	placeholder string
	timeout     time.Duration
	outputDir   string
	outputMode  string
	order       string
	keepOrder   bool
	dups        bool
	pick        int
	noWait      bool
	showCodes   string
	showTime    bool
	separators  bool
	dryRun      bool
	logLevel    string
	logFormat   string
	quiet       bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "allssh --hosts <spec> [flags] -- <command>",
	Short: "Run a shell command in parallel across many hosts",
	Long: `allssh fans a single shell command out to many remote hosts
concurrently, collects each host's output and exit status, and presents
a unified report.

Host specs combine numeric ranges, comma lists and named groups:

  web1-3          web1 web2 web3
  node08-10       node08 node09 node10
  foo1,3,5-7i     foo1i foo3i foo5i foo6i foo7i
  @WEB            every member of group WEB
  @WEB:UP         members of WEB that answer a ping

Groups load from a config file ([$ALLSSH_GROUPS] or
~/.config/allssh/groups); the connection itself is delegated to an
external client such as ssh, invoked one process per host.

Examples:
  # Run uptime on a range of hosts
  allssh --hosts "web1-10" -- uptime

  # Restart a service on live database hosts, as root
  allssh --hosts "@DB:UP" --user root -- "systemctl restart postgres"

  # Substitute the target hostname into the command
  allssh --hosts "web1-3" -- "scp /etc/motd backup:/motd.{}"`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return &SetupError{Message: "command is required after '--'"}
		}
		return nil
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		configManager := config.NewManager()
		loadedCfg, err := configManager.Load()
		if err != nil {
			return &SetupError{Message: fmt.Sprintf("failed to load configuration: %v", err)}
		}
		cfg = loadedCfg

		if err := overrideConfigWithFlags(cmd); err != nil {
			return err
		}

		if cfg.Hosts == "" {
			return &SetupError{Message: "must specify hosts via --hosts or ALLSSH_HOSTS"}
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		return run(command)
	},
}

func init() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("allssh %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built: %s\n", buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().StringVar(&hosts, "hosts", "", "Host spec: ranges, lists and @group references")
	rootCmd.Flags().StringVar(&groupsFile, "groups", "", "Path to the group config file")
	rootCmd.Flags().StringVar(&client, "client", "ssh", "Remote-execution client binary")
	rootCmd.Flags().StringVar(&user, "user", "", "Remote user (user@host)")
	rootCmd.Flags().BoolVar(&insecure, "insecure", false, "Relax strict host key checking")
	rootCmd.Flags().StringVar(&placeholder, "placeholder", "{}", "Token replaced with the hostname in the command")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "Global run timeout (0 for no timeout)")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "Write each host's output to a file in this directory")
	rootCmd.Flags().StringVar(&outputMode, "output", "text", "Output format (text, json)")
	rootCmd.Flags().StringVar(&order, "order", "host", "Result order (host, completion)")
	rootCmd.Flags().BoolVar(&keepOrder, "keep-order", false, "Preserve spec order instead of natural host order")
	rootCmd.Flags().BoolVar(&dups, "dups", false, "Keep duplicate hosts (run the command once per occurrence)")
	rootCmd.Flags().IntVar(&pick, "pick", 0, "Run on a random subset of this many hosts")
	rootCmd.Flags().BoolVar(&noWait, "no-wait", false, "Print each result as soon as its job completes")
	rootCmd.Flags().StringVar(&showCodes, "show-codes", "auto", "Show exit codes (auto, always, never)")
	rootCmd.Flags().BoolVar(&showTime, "show-time", false, "Show elapsed seconds per job")
	rootCmd.Flags().BoolVar(&separators, "separators", false, "Always print banner separators between hosts")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show the resolved hosts and argv without connecting")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (info, error)")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format (json, text)")
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress non-error output")

	rootCmd.SetUsageTemplate(rootCmd.UsageTemplate() + `
Note: Command to execute must be specified after '--' separator.
`)
}

func overrideConfigWithFlags(cmd *cobra.Command) error {
	if cmd.Flags().Changed("hosts") {
		cfg.Hosts = hosts
	}
	if cmd.Flags().Changed("groups") {
		cfg.Groups = groupsFile
	}
	if cmd.Flags().Changed("client") {
		cfg.Client = client
	}
	if cmd.Flags().Changed("user") {
		cfg.User = user
	}
	if cmd.Flags().Changed("insecure") {
		cfg.Insecure = insecure
	}
	if cmd.Flags().Changed("placeholder") {
		cfg.Placeholder = placeholder
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = timeout
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = outputMode
	}
	if cmd.Flags().Changed("order") {
		cfg.Order = order
	}
	if cmd.Flags().Changed("keep-order") {
		cfg.KeepOrder = keepOrder
	}
	if cmd.Flags().Changed("dups") {
		cfg.Dups = dups
	}
	if cmd.Flags().Changed("pick") {
		cfg.Pick = pick
	}
	if cmd.Flags().Changed("no-wait") {
		cfg.NoWait = noWait
		// Streaming implies completion order unless the user asked
		// for host order explicitly, which Validate rejects.
		if noWait && !cmd.Flags().Changed("order") {
			cfg.Order = "completion"
		}
	}
	if cmd.Flags().Changed("show-codes") {
		cfg.ShowCodes = showCodes
	}
	if cmd.Flags().Changed("show-time") {
		cfg.ShowTime = showTime
	}
	if cmd.Flags().Changed("separators") {
		cfg.Separators = separators
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = dryRun
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if cmd.Flags().Changed("quiet") {
		cfg.Quiet = quiet
	}

	configManager := config.NewManager()
	if err := configManager.Validate(cfg); err != nil {
		return &SetupError{Message: err.Error()}
	}

	return nil
}

func run(command string) error {
	logger := logging.NewLoggerFromConfig(cfg.LogLevel, cfg.LogFormat, cfg.Quiet)
	logger.LogConfigLoad("CLI flags and configuration files")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := groups.NewStore(config.GroupsPath(cfg), logger)
	prober := probe.NewProber(logger)
	res := resolver.New(store, prober, logger)

	hostList, err := res.Resolve(ctx, cfg.Hosts, resolver.Options{
		Dedup:     !cfg.Dups,
		KeepOrder: cfg.KeepOrder,
		Pick:      cfg.Pick,
	})
	if err != nil {
		if errdefs.IsUsage(err) {
			return &SetupError{Message: err.Error()}
		}
		return err
	}

	orch := executor.New(executor.Config{
		Client:      cfg.Client,
		User:        cfg.User,
		Insecure:    cfg.Insecure,
		Placeholder: cfg.Placeholder,
		Timeout:     cfg.Timeout,
		OutputDir:   cfg.OutputDir,
	}, logger)

	if cfg.DryRun {
		return performDryRun(orch, command, hostList)
	}

	renderer := render.NewRenderer(os.Stdout, render.Options{
		Order:      render.OrderMode(cfg.Order),
		Format:     render.Format(cfg.Output),
		ShowCodes:  render.CodeMode(cfg.ShowCodes),
		ShowTime:   cfg.ShowTime,
		Separators: cfg.Separators,
	})

	if cfg.NoWait {
		orch.OnComplete(func(j *executor.Job) {
			if err := renderer.RenderJob(j, render.Metrics{}); err != nil {
				logger.Error("failed to render result", "host", j.Host, "error", err)
			}
		})
	}

	result, err := orch.Run(ctx, command, hostList)
	if err != nil {
		return err
	}

	if !cfg.NoWait {
		if err := renderer.RenderRun(result, hostList); err != nil {
			logger.Error("failed to render results", "error", err)
		}
	}

	if result.Aggregate != 0 {
		return &RunError{Code: result.Aggregate}
	}
	return nil
}

func performDryRun(orch *executor.Orchestrator, command string, hostList []string) error {
	jobs, err := orch.Plan(command, hostList)
	if err != nil {
		return err
	}

	fmt.Printf("Resolved %d hosts:\n", len(hostList))
	for _, job := range jobs {
		fmt.Printf("  %s", job.Host)
		if job.Occurrence > 0 {
			fmt.Printf(" (occurrence %d)", job.Occurrence)
		}
		fmt.Printf("\n    %s\n", strings.Join(job.Argv, " "))
	}
	fmt.Println("\nDry run only; no commands were executed.")
	return nil
}

// RunError carries the aggregate exit code of a run where at least one
// host failed or the run timed out.
type RunError struct {
	Code int
}

func (e *RunError) Error() string {
	if e.Code < 0 {
		return "run timed out"
	}
	return fmt.Sprintf("one or more hosts failed (exit code %d)", e.Code)
}

// SetupError represents an error during setup/configuration (exit code 1)
type SetupError struct {
	Message string
}

func (e *SetupError) Error() string {
	return e.Message
}

// getExitCode determines the process exit code:
//   - 0: every host succeeded
//   - first nonzero per-host exit code, or 255 on global timeout
//   - 1: configuration/usage errors
func getExitCode(err error) int {
	if err == nil {
		return 0
	}

	if re, ok := err.(*RunError); ok {
		if re.Code < 0 {
			return 255
		}
		return re.Code
	}

	// Setup, usage and unexpected errors all map to 1.
	return 1
}
