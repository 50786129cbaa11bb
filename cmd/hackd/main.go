// Command hackd is the control-daemon entry point: it wires every package
// under pkg/ into a running server and exposes the lifecycle subcommands
// (run, start, stop, restart, status, install) a supervising shell or
// launchd invokes (spec §4.A, §4.I).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/integrii/flaggy"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/config"
	"github.com/hack-dance/hackd/pkg/daemon"
	"github.com/hack-dance/hackd/pkg/health"
	"github.com/hack-dance/hackd/pkg/log"
	"github.com/hack-dance/hackd/pkg/logpipe"
	"github.com/hack-dance/hackd/pkg/registry"
	"github.com/hack-dance/hackd/pkg/runtimeinv"
	"github.com/hack-dance/hackd/pkg/status"
	"github.com/hack-dance/hackd/pkg/supervisor"
	"github.com/hack-dance/hackd/pkg/tokens"
	"github.com/hack-dance/hackd/pkg/utils"
)

const defaultVersion = "unversioned"

var (
	commit  string
	version = defaultVersion
	date    string

	debugFlag      = false
	foregroundFlag = false
	plistPathFlag  = ""
)

func main() {
	updateBuildInfo()

	flaggy.SetName("hackd")
	flaggy.SetDescription("Control daemon for hack-managed developer environments")
	flaggy.SetVersion(version)
	flaggy.Bool(&debugFlag, "d", "debug", "enable verbose logging")

	runCmd := flaggy.NewSubcommand("run")
	runCmd.Description = "run the daemon in the foreground (invoked by start/launchd)"
	runCmd.Bool(&foregroundFlag, "", "foreground", "accepted for supervisor compatibility; run always stays in the foreground")

	startCmd := flaggy.NewSubcommand("start")
	startCmd.Description = "start the daemon as a detached background process"

	stopCmd := flaggy.NewSubcommand("stop")
	stopCmd.Description = "stop the running daemon"

	restartCmd := flaggy.NewSubcommand("restart")
	restartCmd.Description = "stop then start the daemon"

	statusCmd := flaggy.NewSubcommand("status")
	statusCmd.Description = "report daemon lifecycle status"

	installCmd := flaggy.NewSubcommand("install")
	installCmd.Description = "write a launchd service descriptor (darwin only)"
	installCmd.String(&plistPathFlag, "", "plist", "destination path for the service descriptor")

	flaggy.AttachSubcommand(runCmd, 1)
	flaggy.AttachSubcommand(startCmd, 1)
	flaggy.AttachSubcommand(stopCmd, 1)
	flaggy.AttachSubcommand(restartCmd, 1)
	flaggy.AttachSubcommand(statusCmd, 1)
	flaggy.AttachSubcommand(installCmd, 1)

	flaggy.Parse()

	cfg, err := config.Load(version, commit, date, debugFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := log.New(log.Options{
		LogPath:   cfg.Paths.LogFile,
		Debug:     cfg.Debug,
		Version:   cfg.Version,
		Commit:    cfg.Commit,
		BuildDate: cfg.BuildDate,
	})

	sup := supervisor.New(cfg.Paths, logger)

	switch {
	case runCmd.Used:
		os.Exit(runForeground(cfg, logger))
	case startCmd.Used:
		os.Exit(runLifecycle(sup.Start))
	case stopCmd.Used:
		os.Exit(runStop(sup))
	case restartCmd.Used:
		os.Exit(runLifecycle(sup.Restart))
	case statusCmd.Used:
		os.Exit(runStatus(sup))
	case installCmd.Used:
		os.Exit(runInstall(sup, cfg, plistPathFlag))
	default:
		flaggy.ShowHelpAndExit("a subcommand is required")
	}
}

func updateBuildInfo() {
	if version != defaultVersion {
		return
	}
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if revision, found := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.revision"
	}); found {
		commit = revision.Value
		if len(commit) > 7 {
			version = commit[:7]
		} else {
			version = commit
		}
	}
	if t, found := lo.Find(buildInfo.Settings, func(s debug.BuildSetting) bool {
		return s.Key == "vcs.time"
	}); found {
		date = t.Value
	}
}

func runLifecycle(op func(ctx context.Context) (*supervisor.StartResult, error)) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := op(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	if result.AlreadyRunning {
		fmt.Printf("hackd already running (pid %d)\n", result.Pid)
	} else {
		fmt.Printf("hackd started (pid %d)\n", result.Pid)
	}
	return 0
}

func runStop(sup *supervisor.Supervisor) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sup.Stop(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	fmt.Println("hackd stopped")
	return 0
}

func runStatus(sup *supervisor.Supervisor) int {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	report := sup.Status(ctx)
	fmt.Printf("status=%s pid=%d processRunning=%v apiOk=%v socketExists=%v\n",
		report.Status, report.Pid, report.ProcessRunning, report.APIOk, report.SocketExists)
	if report.Status == supervisor.ReadinessRunning {
		return 0
	}
	return 1
}

func runInstall(sup *supervisor.Supervisor, cfg *config.Config, plistPath string) int {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if plistPath == "" {
		plistPath = cfg.Paths.LaunchdPlistPath
	}
	if err := sup.Install(plistPath, self); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}
	fmt.Printf("wrote service descriptor to %s\n", plistPath)
	return 0
}

func exitCodeFor(err error) int {
	if apierrors.CodeOf(err) == apierrors.CodeInvalidRequest {
		return 2
	}
	return 1
}

// runForeground builds every subsystem and blocks serving the daemon until
// it receives SIGINT/SIGTERM, per §4.A's foreground-process lifecycle.
func runForeground(cfg *config.Config, logger *logrus.Entry) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := cfg.Paths.Acquire(); err != nil {
		logger.WithError(err).Error("failed to acquire daemon state")
		return exitCodeFor(err)
	}
	defer cfg.Paths.Release()

	reg, err := registry.Open(cfg.Paths.RegistryFile, logger)
	if err != nil {
		logger.WithError(err).Error("failed to open registry")
		return 1
	}
	tok, err := tokens.Open(cfg.Paths.TokensFile, logger)
	if err != nil {
		logger.WithError(err).Error("failed to open token store")
		return 1
	}
	counters, err := status.OpenCounters(cfg.Paths.RuntimeCounters)
	if err != nil {
		logger.WithError(err).Error("failed to open runtime counters")
		return 1
	}

	runtimeBin := cfg.RuntimeBin
	if runtimeBin == "" {
		runtimeBin = detectRuntimeBin()
	}
	inspector := runtimeinv.NewInspector(runtimeBin, runtimeinv.CommandTemplates{}, logger)

	probes := status.ProbeSet{
		Proxy: func(ctx context.Context) health.Result {
			return health.RuntimeReachable(ctx, inspector, cfg.ProbeTimeout)
		},
		Logging: func(ctx context.Context) health.Result {
			return health.FileExists(ctx, cfg.Paths.RuntimeCounters, cfg.ProbeTimeout)
		},
		Network: func(ctx context.Context) health.Result {
			return health.BinaryAvailable(ctx, runtimeBin, cfg.ProbeTimeout)
		},
	}
	reconciler := status.New(cfg.Paths, cfg, reg, tok, inspector, counters, probes)

	runtimeSource := logpipe.NewRuntimeSource(runtimeBin, logger)
	var storeSource *logpipe.StoreSource
	if cfg.Extensions.Gateway.Enabled {
		storeURL := fmt.Sprintf("http://%s/v1/query", health.Addr(cfg.Extensions.Gateway.Bind, cfg.Extensions.Gateway.Port))
		storeSource = logpipe.NewStoreSource(storeURL, nil, logger)
	}
	pipeline := logpipe.NewPipeline(runtimeSource, storeSource, logger)

	daemonInfo := func() status.DaemonInfo {
		return status.DaemonInfo{
			Pid:          os.Getpid(),
			Readiness:    string(supervisor.ReadinessRunning),
			PidExists:    true,
			SocketExists: cfg.Paths.SocketExists(),
		}
	}

	srv := daemon.New(daemon.Deps{
		Log:               logger,
		Registry:          reg,
		Tokens:            tok,
		Reconciler:        reconciler,
		Pipeline:          pipeline,
		DaemonInfo:        daemonInfo,
		AllowWrites:       cfg.Extensions.Gateway.AllowWrites,
		ReconcileInterval: cfg.ReconcileInterval,
	})

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.ServeUDS(ctx, cfg.Paths.SocketPath)
	}()

	if cfg.Extensions.Gateway.Enabled {
		addr := health.Addr(cfg.Extensions.Gateway.Bind, cfg.Extensions.Gateway.Port)
		go func() {
			errCh <- srv.ServeTCP(ctx, addr)
		}()
	}

	for kind, exp := range cfg.Extensions.Exposures {
		if !exp.Enabled {
			continue
		}
		logger.WithField("exposure", kind).Infof("exposure fields:\n%s", utils.FormatMap(exp.Fields))
	}

	logger.WithField("socket", cfg.Paths.SocketPath).Info("hackd daemon started")

	select {
	case <-ctx.Done():
		logger.Info("hackd daemon shutting down")
		return 0
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("daemon listener failed")
			return 1
		}
		return 0
	}
}

func detectRuntimeBin() string {
	for _, candidate := range []string{"docker", "podman"} {
		if runtimeinv.LookPath(candidate) {
			return candidate
		}
	}
	return "docker"
}
