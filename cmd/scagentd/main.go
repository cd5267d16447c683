// Command scagentd is the per-host container supervisor daemon: it
// owns one agent registry (pkg/agent), exposes it over a Unix-domain
// gRPC socket (pkg/rpc), and serves Prometheus metrics plus health
// endpoints over HTTP (pkg/metrics).
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cuemby/warren/pkg/agent"
	"github.com/cuemby/warren/pkg/capability"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/notifier"
	"github.com/cuemby/warren/pkg/rpc"
	"github.com/cuemby/warren/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "scagentd",
	Short:   "scagentd supervises one host's containers behind a local gRPC socket",
	Version: Version,
	RunE:    runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("scagentd version %s\nCommit: %s\n", Version, Commit))

	flags := rootCmd.Flags()
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.String("config", "", "Path to a YAML config file (flags below override its values when set)")
	flags.String("socket", "/run/scagentd/scagentd.sock", "Unix socket the RPC server listens on")
	flags.String("shared-mounts-dir", "/var/lib/scagentd/mounts", "Host directory containers' shared mount points live under")
	flags.String("containerd-socket", "", "containerd socket path (auto-detected if empty)")
	flags.Int("preload-count", 0, "Number of containers to preload at startup")
	flags.Duration("shutdown-grace-period", 5*time.Second, "Default container shutdown grace period")
	flags.String("capability-store", "", "Path to a bbolt capability store (in-memory only if empty)")
	flags.String("registry-store", "", "Path to a bbolt registry store recording allocated container ids (in-memory only if empty)")
	flags.String("dbus-proxy-helper", "", "Path to the dbus-proxy helper binary (reserved; the dbus gateway currently spawns it from $PATH)")
	flags.String("default-capability", "default", "Capability name resolved once at startup and applied to every container's first Execute call")
	flags.String("metrics-addr", "127.0.0.1:9090", "Address the Prometheus/health HTTP endpoints listen on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	logLevel, _ := flags.GetString("log-level")
	logJSON, _ := flags.GetBool("log-json")
	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})

	cfg, err := resolveConfig(flags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l := log.WithComponent("scagentd")

	rt, err := container.NewContainerdRuntime(cfg.ContainerdSocketPath)
	if err != nil {
		return fmt.Errorf("connect to containerd: %w", err)
	}

	capStore, err := newCapabilityStore(cfg.CapabilityStorePath)
	if err != nil {
		return err
	}

	defaultCapName, _ := flags.GetString("default-capability")
	defaultCapabilities, err := capStore.Resolve(types.CapabilityName(defaultCapName))
	if err != nil {
		if !errors.Is(err, capability.ErrUnknownCapability) {
			return fmt.Errorf("resolve default capability %q: %w", defaultCapName, err)
		}
		l.Warn().Str("capability", defaultCapName).Msg("no such capability defined, containers start with no default gateways")
	}

	reactor := notifier.New()
	reactor.Start()
	defer reactor.Stop()

	a := agent.New(cfg, rt, reactor, capStore, defaultCapabilities)

	if cfg.RegistryStorePath != "" {
		registryStore, err := agent.NewBoltRegistryStore(cfg.RegistryStorePath)
		if err != nil {
			return fmt.Errorf("open registry store: %w", err)
		}
		defer registryStore.Close()
		a.SetRegistryStore(registryStore)
		if err := a.RestoreIDs(); err != nil {
			return fmt.Errorf("restore registry: %w", err)
		}
	}

	if cfg.PreloadCount > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := a.Preload(ctx, cfg.PreloadCount)
		cancel()
		if err != nil {
			return fmt.Errorf("preload containers: %w", err)
		}
	}

	collector := metrics.NewCollector(a)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	metrics.RegisterComponent("containerd", true, "connected")
	metrics.RegisterComponent("rpc", false, "starting")

	metricsAddr, _ := flags.GetString("metrics-addr")
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	l.Info().Str("addr", metricsAddr).Msg("metrics and health endpoints listening")

	rpcServer := rpc.NewServer(a, cfg.SocketPath)
	errCh := make(chan error, 1)
	go func() {
		if lis := systemdListener(); lis != nil {
			errCh <- rpcServer.StartOn(lis)
			return
		}
		errCh <- rpcServer.Start()
	}()
	time.Sleep(200 * time.Millisecond)
	metrics.RegisterComponent("rpc", true, "listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		l.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			l.Error().Err(err).Msg("rpc server stopped unexpectedly")
		}
	}

	rpcServer.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)

	l.Info().Msg("shutdown complete")
	return nil
}

// resolveConfig layers explicit command-line flags over an optional
// YAML config file's values: a flag the user actually set always
// wins, a file value fills in anything left at its flag default.
func resolveConfig(flags *pflag.FlagSet) (config.Resolved, error) {
	var cfg config.Resolved

	if path, _ := flags.GetString("config"); path != "" {
		fileCfg, err := config.LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = fileCfg.Resolve()
	}

	if flags.Changed("shared-mounts-dir") || cfg.SharedMountsDir == "" {
		cfg.SharedMountsDir, _ = flags.GetString("shared-mounts-dir")
	}
	if flags.Changed("socket") || cfg.SocketPath == "" {
		cfg.SocketPath, _ = flags.GetString("socket")
	}
	if flags.Changed("containerd-socket") || cfg.ContainerdSocketPath == "" {
		cfg.ContainerdSocketPath, _ = flags.GetString("containerd-socket")
	}
	if flags.Changed("preload-count") || cfg.PreloadCount == 0 {
		cfg.PreloadCount, _ = flags.GetInt("preload-count")
	}
	if flags.Changed("shutdown-grace-period") || cfg.ShutdownGracePeriod == 0 {
		cfg.ShutdownGracePeriod, _ = flags.GetDuration("shutdown-grace-period")
	}
	if flags.Changed("capability-store") || cfg.CapabilityStorePath == "" {
		cfg.CapabilityStorePath, _ = flags.GetString("capability-store")
	}
	if flags.Changed("registry-store") || cfg.RegistryStorePath == "" {
		cfg.RegistryStorePath, _ = flags.GetString("registry-store")
	}
	if flags.Changed("dbus-proxy-helper") || cfg.DBusProxyHelperPath == "" {
		cfg.DBusProxyHelperPath, _ = flags.GetString("dbus-proxy-helper")
	}

	return cfg, nil
}

func newCapabilityStore(path string) (capability.Store, error) {
	if path == "" {
		return capability.NewMemoryStore(), nil
	}
	store, err := capability.NewBoltStore(path)
	if err != nil {
		return nil, fmt.Errorf("open capability store %s: %w", path, err)
	}
	return store, nil
}

// systemdListener returns the first socket systemd handed down via
// LISTEN_FDS (socket-activated unit), or nil if scagentd was started
// normally and should bind its own socket.
func systemdListener() net.Listener {
	listeners, err := activation.Listeners()
	if err != nil || len(listeners) == 0 {
		return nil
	}
	return listeners[0]
}
