package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"credvault/internal/config"
	"credvault/internal/logging"
	"credvault/internal/storelock"
	"credvault/internal/tui"
	"credvault/internal/vault"
)

const version = "0.1.0-dev"

const (
	exitOK       = 0
	exitNegative = 1
	exitError    = 2
)

// tuiLogFile receives log events while the TUI owns the terminal
const tuiLogFile = "credvault.log"

var (
	stdin  io.Reader = os.Stdin
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr

	isTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readSecret = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) }

	lineReader *bufio.Reader
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches one invocation and returns the process exit code
func run(args []string) int {
	configPath, rest, err := parseGlobalFlags(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n\n", err)
		printUsage(nil, nil)
		return exitError
	}

	app := &app{configPath: configPath}

	if len(rest) == 0 {
		return app.runTUI(nil)
	}

	command := strings.ToLower(rest[0])
	if handler, ok := commandHandlers()[command]; ok {
		return handler(app, rest[1:])
	}

	fmt.Fprintf(stderr, "Unknown command: %s\n\n", rest[0])
	printUsage(app, nil)
	return exitError
}

type app struct {
	configPath string
}

func commandHandlers() map[string]func(*app, []string) int {
	return map[string]func(*app, []string) int{
		"add":     (*app).runAdd,
		"auth":    (*app).runAuth,
		"passwd":  (*app).runPasswd,
		"rename":  (*app).runRename,
		"delete":  (*app).runDelete,
		"list":    (*app).runList,
		"rotate":  (*app).runRotate,
		"status":  (*app).runStatus,
		"tui":     (*app).runTUI,
		"config":  (*app).runConfig,
		"unlock":  (*app).runUnlock,
		"version": runVersion,
		"help":    printUsage,
		"--help":  printUsage,
		"-h":      printUsage,
	}
}

// parseGlobalFlags extracts --config from anywhere in args
func parseGlobalFlags(args []string) (string, []string, error) {
	var configPath string
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config":
			if i+1 >= len(args) {
				return "", nil, errors.New("--config requires a path")
			}
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
			if configPath == "" {
				return "", nil, errors.New("--config requires a path")
			}
		default:
			rest = append(rest, arg)
		}
	}
	return configPath, rest, nil
}

func (a *app) loadConfig() (config.Config, error) {
	if a.configPath != "" {
		return config.LoadFrom(a.configPath)
	}
	return config.Load()
}

// newLogger builds the configured logger. fallbackFile is used when no
// logging.file is set and stderr must stay clean.
func newLogger(cfg config.Config, fallbackFile string) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format := logging.Format(cfg.Logging.Format)

	path := cfg.Logging.File
	if path == "" {
		path = fallbackFile
	}
	if path != "" {
		return logging.NewFileLogger(level, format, path)
	}
	return logging.NewWriterLogger(level, format, stderr), nil
}

// withVault loads config, opens the vault and runs fn, returning its exit code
func (a *app) withVault(fallbackLog string, fn func(*vault.Vault, config.Config, *logging.Logger) int) int {
	cfg, err := a.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}

	fallback := ""
	if fallbackLog != "" {
		fallback = filepath.Join(cfg.DataDir(), fallbackLog)
	}
	logger, err := newLogger(cfg, fallback)
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing logger: %v\n", err)
		return exitError
	}
	defer func() {
		if cerr := logger.Close(); cerr != nil {
			fmt.Fprintf(stderr, "Warning: failed to close log file: %v\n", cerr)
		}
	}()

	v, err := vault.Open(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening credential store: %v\n", err)
		if errors.Is(err, storelock.ErrLocked) {
			fmt.Fprintf(stderr, "If no other credvault is running, use 'credvault unlock' to clear the lock.\n")
		}
		return exitError
	}
	defer func() {
		if cerr := v.Close(); cerr != nil {
			logger.Warn("vault.close_failed", "Failed to close vault", map[string]interface{}{
				"error": cerr.Error(),
			})
		}
	}()

	return fn(v, cfg, logger)
}

// report prints a Result and maps it to an exit code
func report(result vault.Result, err error) int {
	if err != nil {
		fmt.Fprintln(stderr, result.Message)
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	if !result.OK {
		fmt.Fprintln(stdout, result.Message)
		return exitNegative
	}
	fmt.Fprintln(stdout, result.Message)
	return exitOK
}

func usageError(usage string) int {
	fmt.Fprintf(stderr, "Usage: credvault %s\n", usage)
	return exitError
}

func (a *app) runAdd(args []string) int {
	if len(args) != 1 {
		return usageError("add <username>")
	}
	pw, err := readNewPassword("Password: ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		return report(v.AddUser(args[0], pw))
	})
}

func (a *app) runAuth(args []string) int {
	if len(args) != 1 {
		return usageError("auth <username>")
	}
	pw, err := readPassword("Password: ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		return report(v.Authenticate(args[0], pw))
	})
}

func (a *app) runPasswd(args []string) int {
	if len(args) != 1 {
		return usageError("passwd <username>")
	}
	pw, err := readNewPassword("New password: ")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		return report(v.UpdatePassword(args[0], pw))
	})
}

func (a *app) runRename(args []string) int {
	if len(args) != 2 {
		return usageError("rename <old-username> <new-username>")
	}
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		return report(v.RenameUser(args[0], args[1]))
	})
}

func (a *app) runDelete(args []string) int {
	if len(args) != 1 {
		return usageError("delete <username>")
	}
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		return report(v.DeleteUser(args[0]))
	})
}

func (a *app) runList(_ []string) int {
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		users := v.Users()
		if len(users) == 0 {
			fmt.Fprintln(stdout, "No users.")
			return exitOK
		}
		for _, u := range users {
			fmt.Fprintln(stdout, u)
		}
		return exitOK
	})
}

func (a *app) runRotate(_ []string) int {
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		return report(v.RotateKey())
	})
}

func (a *app) runStatus(_ []string) int {
	return a.withVault("", func(v *vault.Vault, _ config.Config, _ *logging.Logger) int {
		st, err := v.Status()
		if err != nil {
			fmt.Fprintf(stderr, "Error reading status: %v\n", err)
			return exitError
		}

		fmt.Fprintln(stdout, "=== credvault status ===")
		fmt.Fprintf(stdout, "Data directory:  %s\n", st.DataDir)
		fmt.Fprintf(stdout, "Credentials:     %s\n", st.CredentialsPath)
		fmt.Fprintf(stdout, "Key file:        %s\n", st.KeyPath)
		fmt.Fprintf(stdout, "Users:           %d\n", st.Users)
		fmt.Fprintf(stdout, "Key ID:          %s\n", st.Rotation.KeyID)
		if st.Rotation.LastRotation != nil {
			fmt.Fprintf(stdout, "Last rotation:   %s\n", st.Rotation.LastRotation.Local().Format(time.RFC3339))
		} else {
			fmt.Fprintln(stdout, "Last rotation:   never")
		}
		fmt.Fprintf(stdout, "Next rotation:   %s\n", vault.FormatDue(st.Rotation, time.Now()))
		return exitOK
	})
}

// runTUI starts the interactive TUI mode
func (a *app) runTUI(_ []string) int {
	return a.withVault(tuiLogFile, func(v *vault.Vault, cfg config.Config, logger *logging.Logger) int {
		startTime := time.Now()
		logger.Info("app.started", "Application started", map[string]interface{}{
			"version": version,
			"ts":      startTime.UTC().Format(time.RFC3339),
		})

		state := tui.NewUIStateManager(filepath.Join(cfg.DataDir(), tui.UIStateFileName), logger)

		p := tea.NewProgram(tui.NewModel(v, logger, state))
		if _, err := p.Run(); err != nil {
			logger.Error("app.error", "Application error", map[string]interface{}{
				"error": err.Error(),
			})
			fmt.Fprintf(stderr, "Error running TUI: %v\n", err)
			return exitError
		}

		logger.Info("app.exited", "Application exited", map[string]interface{}{
			"ts":       time.Now().UTC().Format(time.RFC3339),
			"duration": time.Since(startTime).Round(time.Second).String(),
		})
		return exitOK
	})
}

func (a *app) runConfig(args []string) int {
	if len(args) < 1 {
		fmt.Fprintf(stderr, "Usage: credvault config <subcommand>\n")
		fmt.Fprintf(stderr, "Subcommands:\n")
		fmt.Fprintf(stderr, "  show         Print the effective configuration\n")
		fmt.Fprintf(stderr, "  test [path]  Test configuration file for validity\n")
		return exitError
	}

	switch strings.ToLower(args[0]) {
	case "show":
		cfg, err := a.loadConfig()
		if err != nil {
			fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
			return exitError
		}
		out, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintf(stderr, "Error rendering configuration: %v\n", err)
			return exitError
		}
		fmt.Fprint(stdout, string(out))
		return exitOK
	case "test":
		return a.runConfigTest(args[1:])
	default:
		fmt.Fprintf(stderr, "Unknown config subcommand: %s\n", args[0])
		fmt.Fprintf(stderr, "Valid subcommands: show, test\n")
		return exitError
	}
}

// runConfigTest validates configuration file(s)
func (a *app) runConfigTest(args []string) int {
	var (
		cfg       config.Config
		configErr error
	)

	switch {
	case len(args) > 0:
		fmt.Fprintf(stdout, "Testing configuration file: %s\n", args[0])
		cfg, configErr = config.LoadFrom(args[0])
	case a.configPath != "":
		fmt.Fprintf(stdout, "Testing configuration file: %s\n", a.configPath)
		cfg, configErr = config.LoadFrom(a.configPath)
	default:
		fmt.Fprintln(stdout, "Testing configuration (system + user merge):")
		fmt.Fprintf(stdout, "  System config: %s\n", config.SystemConfigPath())
		if userPath := config.UserConfigPath(); userPath != "" {
			fmt.Fprintf(stdout, "  User config:   %s\n", userPath)
		}
		fmt.Fprintln(stdout)
		cfg, configErr = config.Load()
	}

	if configErr != nil {
		fmt.Fprintf(stderr, "❌ Configuration validation FAILED:\n")
		fmt.Fprintf(stderr, "   %v\n", configErr)
		return exitNegative
	}

	fmt.Fprintln(stdout, "✓ Configuration is VALID")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Configuration Summary:")
	fmt.Fprintf(stdout, "  Data Directory:       %s\n", cfg.DataDir())
	fmt.Fprintf(stdout, "  Rotation Interval:    %d days\n", cfg.Rotation.IntervalDays)
	fmt.Fprintf(stdout, "  Check On Startup:     %t\n", cfg.Rotation.CheckOnStartup)
	fmt.Fprintf(stdout, "  Bcrypt Cost:          %d\n", cfg.Hashing.BcryptCost)
	fmt.Fprintf(stdout, "  Log Level:            %s\n", cfg.Logging.Level)
	fmt.Fprintf(stdout, "  Log Format:           %s\n", cfg.Logging.Format)
	return exitOK
}

// runUnlock force-removes the store lock (recovery)
func (a *app) runUnlock(args []string) int {
	force := false
	switch {
	case len(args) == 0:
	case len(args) == 1 && args[0] == "--force":
		force = true
	default:
		return usageError("unlock [--force]")
	}

	cfg, err := a.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return exitError
	}
	logger, err := newLogger(cfg, "")
	if err != nil {
		fmt.Fprintf(stderr, "Error initializing logger: %v\n", err)
		return exitError
	}
	defer func() { _ = logger.Close() }()

	holder, err := storelock.NewManager(cfg.LockPath(), logger).Unlock(force)
	if err != nil {
		fmt.Fprintf(stderr, "Error removing lock: %v\n", err)
		if errors.Is(err, storelock.ErrLocked) {
			fmt.Fprintf(stderr, "Stop that process first, or use 'credvault unlock --force' if it is not using this store.\n")
		}
		return exitError
	}
	if holder == nil {
		fmt.Fprintln(stdout, "Store is not locked")
		return exitOK
	}
	fmt.Fprintf(stdout, "✓ Store lock removed (was pid %d on %s)\n", holder.PID, holder.Hostname)
	return exitOK
}

func runVersion(_ *app, _ []string) int {
	fmt.Fprintf(stdout, "credvault version %s\n", version)
	return exitOK
}

// readPassword prompts without echo on a terminal, or reads one line otherwise
func readPassword(prompt string) (string, error) {
	if isTerminal() {
		fmt.Fprint(stderr, prompt)
		secret, err := readSecret()
		fmt.Fprintln(stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}

	if lineReader == nil {
		lineReader = bufio.NewReader(stdin)
	}
	line, err := lineReader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readNewPassword asks twice on a terminal and requires both entries to match
func readNewPassword(prompt string) (string, error) {
	pw, err := readPassword(prompt)
	if err != nil {
		return "", err
	}
	if !isTerminal() {
		return pw, nil
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if pw != confirm {
		return "", errors.New("passwords do not match")
	}
	return pw, nil
}

func printUsage(_ *app, _ []string) int {
	fmt.Fprintf(stdout, `credvault - Encrypted User Credential Store (version %s)

Usage:
  credvault [--config <path>] [command]

Commands:
  credvault                          Start the interactive TUI (default)
  credvault tui                      Start the interactive TUI
  credvault add <username>           Add a user (password read from prompt or stdin)
  credvault auth <username>          Check a password (exit 0 on success, 1 on failure)
  credvault passwd <username>        Change a user's password
  credvault rename <old> <new>       Rename a user
  credvault delete <username>        Delete a user
  credvault list                     List usernames
  credvault rotate                   Rotate the encryption key now
  credvault status                   Show key, rotation and store status
  credvault config show              Print the effective configuration
  credvault config test [path]       Test configuration file for validity
  credvault unlock [--force]         Remove a stale store lock (--force: even if the holder may be alive)
  credvault version                  Print version information
  credvault help                     Show this help message

Exit codes:
  0  success
  1  negative result (unknown user, wrong password, duplicate name)
  2  error (storage, configuration, usage)

Environment:
  CREDVAULT_CONFIG_DIR   System config directory (default /etc/credvault)
  CREDVAULT_STATE_DIR    Overrides storage.data_dir
`, version)
	return exitOK
}
