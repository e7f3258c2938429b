package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/trisync/internal/adapters/server"
	servercommon "github.com/hylla/trisync/internal/adapters/server/common"
	"github.com/hylla/trisync/internal/adapters/storage"
	"github.com/hylla/trisync/internal/app"
	"github.com/hylla/trisync/internal/config"
	"github.com/hylla/trisync/internal/domain"
	"github.com/hylla/trisync/internal/platform"
	"github.com/spf13/cobra"
)

// version is stamped at build time.
var version = "dev"

// serveCommandRunner starts the HTTP+MCP serve flow.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// run executes one CLI invocation through fang.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	appName    string
	devMode    bool
	quiet      bool
}

// newRootCommand builds the command tree. Flag defaults read TRISYNC_* env vars.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	opts := &rootOptions{appName: "trisync"}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("TRISYNC_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("TRISYNC_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}

	root := &cobra.Command{
		Use:           "trisync",
		Short:         "Replicate tenant tasks and records across the employee, intern and admin stores",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config TOML")
	root.PersistentFlags().StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	root.PersistentFlags().BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	root.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "keep runtime logs off the console (the dev-file sink still records them)")

	root.AddCommand(
		newPathsCommand(opts, stdout),
		newServeCommand(opts, stderr),
		newStatusCommand(opts, stdout, stderr),
		newMigrateCommand(opts, stdout, stderr),
		newReconcileCommand(opts, stdout, stderr),
		newSyncCommand(opts, stdout, stderr),
		newRelayCommand(opts, stdout, stderr),
	)
	return root
}

func newPathsCommand(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data locations",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			paths, configPath, cfg, err := resolveConfig(opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(stdout, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(stdout, "config: %s\n", configPath)
			_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
			for _, name := range domain.KnownStores() {
				_, _ = fmt.Fprintf(stdout, "store.%s: %s\n", name, cfg.StoreDSN(name))
			}
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions, stderr io.Writer) *cobra.Command {
	var httpBind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, stderr, "serve", func(ctx context.Context, s *session) error {
				serverCfg := s.cfg.Server
				if v := strings.TrimSpace(httpBind); v != "" {
					serverCfg.HTTPBind = v
				}
				if v := strings.TrimSpace(apiEndpoint); v != "" {
					serverCfg.APIEndpoint = v
				}
				if v := strings.TrimSpace(mcpEndpoint); v != "" {
					serverCfg.MCPEndpoint = v
				}
				return serveCommandRunner(ctx, serveradapter.Config{
					HTTPBind:      serverCfg.HTTPBind,
					APIEndpoint:   serverCfg.APIEndpoint,
					MCPEndpoint:   serverCfg.MCPEndpoint,
					ServerName:    opts.appName,
					ServerVersion: version,
				}, serveradapter.Dependencies{
					Assignments: s.adapter,
					Sync:        s.adapter,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "HTTP API base endpoint (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP streamable HTTP endpoint (default from config)")
	return cmd
}

// tenantTargetFlags registers the --tenant and --target pair.
func tenantTargetFlags(cmd *cobra.Command, req *servercommon.TenantTargetRequest) {
	cmd.Flags().StringVar(&req.TenantID, "tenant", "", "tenant id")
	cmd.Flags().StringVar(&req.TargetSystem, "target", "", "dependent store (employee or intern)")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("target")
}

func newStatusCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var req servercommon.TenantTargetRequest
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether a tenant is provisioned in a dependent store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, stderr, "status", func(ctx context.Context, s *session) error {
				out, err := s.adapter.ProvisioningStatus(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(stdout, out)
			})
		},
	}
	tenantTargetFlags(cmd, &req)
	return cmd
}

func newMigrateCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var req servercommon.TenantTargetRequest
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy one tenant from the admin store into an unprovisioned dependent store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, stderr, "migrate", func(ctx context.Context, s *session) error {
				out, err := s.adapter.Migrate(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(stdout, out)
			})
		},
	}
	tenantTargetFlags(cmd, &req)
	return cmd
}

func newReconcileCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var req servercommon.TenantTargetRequest
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Converge a dependent store onto the admin store for one tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd.Context(), opts, stderr, "reconcile", func(ctx context.Context, s *session) error {
				out, err := s.adapter.Reconcile(ctx, req)
				if err != nil {
					return err
				}
				return writeJSON(stdout, out)
			})
		},
	}
	tenantTargetFlags(cmd, &req)
	return cmd
}

func newSyncCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		req    servercommon.TenantTargetRequest
		coll   string
		record string
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror one new admin record into a dependent store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var fields map[string]any
			if err := json.Unmarshal([]byte(record), &fields); err != nil {
				return fmt.Errorf("decode --record json: %w", err)
			}
			return withSession(cmd.Context(), opts, stderr, "sync", func(ctx context.Context, s *session) error {
				out, err := s.adapter.SyncRecord(ctx, servercommon.SyncRecordRequest{
					TenantID:     req.TenantID,
					TargetSystem: req.TargetSystem,
					Collection:   coll,
					NewRecord:    fields,
				})
				if err != nil {
					return err
				}
				return writeJSON(stdout, out)
			})
		},
	}
	tenantTargetFlags(cmd, &req)
	cmd.Flags().StringVar(&coll, "collection", "", "master collection of the record")
	cmd.Flags().StringVar(&record, "record", "", "record fields as a JSON object, including id")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("record")
	return cmd
}

func newRelayCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var payload, file string
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Relay one admin change notification to the dependent stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := relayPayload(cmd.InOrStdin(), payload, file)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), opts, stderr, "relay", func(ctx context.Context, s *session) error {
				out, err := s.adapter.RelayChange(ctx, body)
				if err != nil {
					return err
				}
				return writeJSON(stdout, out)
			})
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "change notification JSON")
	cmd.Flags().StringVar(&file, "file", "", "read the notification from a file ('-' for stdin)")
	cmd.MarkFlagsMutuallyExclusive("payload", "file")
	return cmd
}

// relayPayload picks the notification body from --payload or --file.
func relayPayload(stdin io.Reader, payload, file string) ([]byte, error) {
	if strings.TrimSpace(payload) != "" {
		return []byte(payload), nil
	}
	switch strings.TrimSpace(file) {
	case "":
		return nil, errors.New("one of --payload or --file is required")
	case "-":
		body, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read notification from stdin: %w", err)
		}
		return body, nil
	default:
		body, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read notification file: %w", err)
		}
		return body, nil
	}
}

// session is the per-command runtime handed to each subcommand.
type session struct {
	cfg     config.Config
	adapter *servercommon.AppServiceAdapter
}

// resolveConfig resolves paths and loads config over the path-derived defaults.
func resolveConfig(opts *rootOptions) (platform.Paths, string, config.Config, error) {
	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: opts.appName,
		DevMode: opts.devMode,
	})
	if err != nil {
		return platform.Paths{}, "", config.Config{}, err
	}
	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("TRISYNC_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	cfg, err := config.Load(configPath, config.Default(paths.DataDir))
	if err != nil {
		return platform.Paths{}, "", config.Config{}, fmt.Errorf("load config %q: %w", configPath, err)
	}
	return paths, configPath, cfg, nil
}

// withSession opens a session, runs fn, and releases every store handle.
func withSession(ctx context.Context, opts *rootOptions, stderr io.Writer, command string, fn func(context.Context, *session) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	paths, configPath, cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	logger, err := newRuntimeLogger(stderr, opts.appName, opts.devMode, cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.SetConsoleEnabled(!opts.quiet)
	defer func() {
		if closeErr := logger.Close(); closeErr != nil && logger.shouldLogToSink(logger.consoleSink) {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Info("startup configuration resolved", "app", opts.appName, "dev_mode", opts.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir)
	logger.Info("configuration loaded", "config_path", configPath, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	registry := app.NewStoreRegistry(storeOpeners(cfg, logger))
	logger.Debug("stores configured", "stores", registry.Configured())
	defer func() {
		if closeErr := registry.Close(); closeErr != nil {
			logger.Warn("store close failed", "err", closeErr)
		}
	}()

	svc := app.NewService(registry, nil, uuid.NewString, time.Now, logger, serviceConfig(cfg))
	s := &session{
		cfg:     cfg,
		adapter: servercommon.NewAppServiceAdapter(svc),
	}

	logger.Info("command flow start", "command", command)
	if err := fn(ctx, s); err != nil {
		logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	logger.Info("command flow complete", "command", command)
	return nil
}

// storeOpeners binds each logical store to its configured DSN.
func storeOpeners(cfg config.Config, logger app.Logger) map[domain.StoreName]app.StoreOpener {
	openers := make(map[domain.StoreName]app.StoreOpener, len(domain.KnownStores()))
	for _, name := range domain.KnownStores() {
		dsn := cfg.StoreDSN(name)
		openers[name] = func(context.Context) (app.DocumentStore, error) {
			logger.Info("opening store", "store", name, "scheme", dsnScheme(dsn))
			store, err := storage.OpenFromDSN(dsn)
			if err != nil {
				logger.Error("store open failed", "store", name, "err", err)
				return nil, err
			}
			return store, nil
		}
	}
	return openers
}

// dsnScheme returns the scheme of a DSN without credentials.
func dsnScheme(dsn string) string {
	scheme, _, ok := strings.Cut(strings.TrimSpace(dsn), "://")
	if !ok {
		return "sqlite"
	}
	return strings.ToLower(scheme)
}

// serviceConfig maps validated config onto the app service.
func serviceConfig(cfg config.Config) app.ServiceConfig {
	out := app.ServiceConfig{
		IDSource:            app.IDSource(strings.ToLower(strings.TrimSpace(cfg.Fanout.IDSource))),
		DefaultAssigneeRole: domain.Role(strings.TrimSpace(cfg.Fanout.DefaultAssigneeRole)),
		PlaceholderDomain:   cfg.Fanout.PlaceholderDomain,
		Authoritative:       domain.StoreAdmin,
		SyncCollections:     append([]string(nil), cfg.Sync.Collections...),
		IgnoreFields:        append([]string(nil), cfg.Sync.IgnoreFields...),
	}
	out.SyncTargets = storeNames(cfg.Sync.Targets)
	out.WebhookTargets = storeNames(cfg.Sync.WebhookTargets)
	return out
}

func storeNames(raw []string) []domain.StoreName {
	out := make([]domain.StoreName, 0, len(raw))
	for _, entry := range raw {
		name, err := domain.ParseStoreName(entry)
		if err != nil {
			continue
		}
		out = append(out, name)
	}
	return out
}

// writeJSON writes one indented JSON document and a trailing newline.
func writeJSON(w io.Writer, v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result json: %w", err)
	}
	encoded = append(encoded, '\n')
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// parseBoolEnv parses a boolean env var, reporting whether it was set and valid.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return value, true
}

// runtimeLogger fans log events to a styled console sink and an optional dev-file sink.
type runtimeLogger struct {
	sinks          []*charmLog.Logger
	consoleSink    *charmLog.Logger
	consoleEnabled bool
	closeFile      func() error
	devLog         string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig, now func() time.Time) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if now == nil {
		now = time.Now
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})
	logger := &runtimeLogger{
		sinks:          []*charmLog.Logger{consoleLogger},
		consoleSink:    consoleLogger,
		consoleEnabled: true,
	}
	if !devMode || !cfg.DevFile.Enabled {
		return logger, nil
	}

	devLogPath, err := devLogFilePath(cfg.DevFile.Dir, appName, now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// File output stays logfmt so it can be grepped and parsed.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// SetConsoleEnabled toggles whether the console sink receives runtime events.
func (l *runtimeLogger) SetConsoleEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.consoleEnabled = enabled
}

func (l *runtimeLogger) shouldLogToSink(sink *charmLog.Logger) bool {
	if l == nil || sink == nil {
		return false
	}
	return sink != l.consoleSink || l.consoleEnabled
}

// each calls fn for every sink that should receive output.
func (l *runtimeLogger) each(fn func(*charmLog.Logger)) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if l.shouldLogToSink(sink) {
			fn(sink)
		}
	}
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg any, keyvals ...any) {
	l.each(func(sink *charmLog.Logger) { sink.Debug(msg, keyvals...) })
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg any, keyvals ...any) {
	l.each(func(sink *charmLog.Logger) { sink.Info(msg, keyvals...) })
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg any, keyvals ...any) {
	l.each(func(sink *charmLog.Logger) { sink.Warn(msg, keyvals...) })
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg any, keyvals ...any) {
	l.each(func(sink *charmLog.Logger) { sink.Error(msg, keyvals...) })
}

// devLogFilePath resolves a workspace-local dev log file for the current run day.
func devLogFilePath(configDir, appName string, now time.Time) (string, error) {
	baseDir := strings.TrimSpace(configDir)
	if baseDir == "" {
		baseDir = ".trisync/log"
	}
	if !filepath.IsAbs(baseDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		baseDir = filepath.Join(workspaceRootFrom(cwd), baseDir)
	}
	fileName := fmt.Sprintf("%s-%s.log", sanitizeLogFileStem(appName), now.Format("20060102"))
	return filepath.Join(filepath.Clean(baseDir), fileName), nil
}

// workspaceRootFrom walks up to the nearest go.mod or .git directory.
func workspaceRootFrom(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" {
		return "."
	}
	dir := start
	for {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func hasWorkspaceMarker(dir string) bool {
	for _, marker := range []string{"go.mod", ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// sanitizeLogFileStem normalizes app names into safe file-name segments.
func sanitizeLogFileStem(appName string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	stem := strings.Trim(replacer.Replace(strings.TrimSpace(appName)), "-")
	if stem == "" {
		return "trisync"
	}
	return stem
}
