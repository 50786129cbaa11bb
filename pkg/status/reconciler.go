package status

import (
	"context"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/hack-dance/hackd/pkg/config"
	"github.com/hack-dance/hackd/pkg/health"
	"github.com/hack-dance/hackd/pkg/paths"
	"github.com/hack-dance/hackd/pkg/registry"
	"github.com/hack-dance/hackd/pkg/runtimeinv"
	"github.com/hack-dance/hackd/pkg/tokens"
)

const wallClock = 3 * time.Second

// ProbeSet is the set of health probes the reconciler composes into the
// snapshot's summary (§4.F item 5). Each field is optional; a nil probe is
// treated as ok so a minimal daemon config still produces a usable
// snapshot.
type ProbeSet struct {
	Proxy   func(ctx context.Context) health.Result
	Logging func(ctx context.Context) health.Result
	Network func(ctx context.Context) health.Result
}

// Reconciler composes sections A-E into a StatusSnapshot (§4.F).
type Reconciler struct {
	paths     *paths.Paths
	cfg       *config.Config
	registry  *registry.Store
	tokens    *tokens.Store
	inspector *runtimeinv.Inspector
	counters  *Counters
	probes    ProbeSet
	includeAllInfra bool

	mu      sync.Mutex
	version int
}

// New builds a Reconciler from its constituent subsystems.
func New(p *paths.Paths, cfg *config.Config, reg *registry.Store, tok *tokens.Store, inspector *runtimeinv.Inspector, counters *Counters, probes ProbeSet) *Reconciler {
	return &Reconciler{
		paths:     p,
		cfg:       cfg,
		registry:  reg,
		tokens:    tok,
		inspector: inspector,
		counters:  counters,
		probes:    probes,
	}
}

// DaemonInfo is supplied by the supervisor/server layer since the
// reconciler itself doesn't own process state.
type DaemonInfo struct {
	Pid          int
	Readiness    string
	PidExists    bool
	SocketExists bool
	StaleReason  string
}

// Reconcile gathers sections A-E under a 3s overall wall clock and
// assembles a versioned Snapshot.
func (r *Reconciler) Reconcile(ctx context.Context, daemonInfo DaemonInfo, unregisteredOptIn bool) *Snapshot {
	ctx, cancel := context.WithTimeout(ctx, wallClock)
	defer cancel()

	var wg sync.WaitGroup
	var inv *runtimeinv.Inventory
	var proxyRes, loggingRes, networkRes health.Result

	wg.Add(4)
	go func() { defer wg.Done(); inv = r.inspector.List(ctx) }()
	go func() { defer wg.Done(); proxyRes = runProbe(ctx, r.probes.Proxy) }()
	go func() { defer wg.Done(); loggingRes = runProbe(ctx, r.probes.Logging) }()
	go func() { defer wg.Done(); networkRes = runProbe(ctx, r.probes.Network) }()
	wg.Wait()

	now := time.Now().UTC()

	runtimeOkNow := inv.Unavailable == nil && proxyRes.Status != health.StatusError
	runtimeSection := r.counters.Observe(runtimeOkNow, now)
	if inv.Unavailable != nil {
		runtimeSection.ErrorText = inv.Unavailable.Error()
	} else if proxyRes.Status == health.StatusError {
		runtimeSection.ErrorText = proxyRes.Message
	}

	filteredInv := runtimeinv.FilterGlobalInfra(inv, r.paths.Root, r.includeAllInfra)
	projects := r.composeProjects(filteredInv, unregisteredOptIn)

	gateway := r.gatewaySection(daemonInfo)

	summary := Summary{
		RuntimeOK:  runtimeSection.OK,
		ProxyOK:    proxyRes.Status != health.StatusError,
		LoggingOK:  loggingRes.Status != health.StatusError,
		NetworksOK: networkRes.Status != health.StatusError,
	}
	summary.OK = summary.RuntimeOK && summary.ProxyOK && summary.LoggingOK && summary.NetworksOK

	r.mu.Lock()
	r.version++
	v := r.version
	r.mu.Unlock()

	return &Snapshot{
		Version:     v,
		GeneratedAt: now,
		Daemon: DaemonSection{
			Pid:          daemonInfo.Pid,
			Readiness:    daemonInfo.Readiness,
			PidExists:    daemonInfo.PidExists,
			SocketExists: daemonInfo.SocketExists,
			StaleReason:  daemonInfo.StaleReason,
		},
		Runtime:  runtimeSection,
		Projects: projects,
		Gateway:  gateway,
		Summary:  summary,
	}
}

func runProbe(ctx context.Context, probe func(ctx context.Context) health.Result) health.Result {
	if probe == nil {
		return health.Result{Status: health.StatusOK, Message: "not configured"}
	}
	return probe(ctx)
}

// composeProjects implements §4.F item 2: union of registry and inventory
// projects, each classified into {missing, running, stopped, unregistered}.
func (r *Reconciler) composeProjects(inv *runtimeinv.Inventory, unregisteredOptIn bool) []ProjectProjection {
	registered := r.registry.List()
	seen := map[string]bool{}
	out := make([]ProjectProjection, 0, len(registered))

	for _, p := range registered {
		seen[p.Name] = true
		out = append(out, r.projectProjection(p, inv.Projects[p.Name], true))
	}

	if unregisteredOptIn {
		for _, label := range runtimeinv.SortedProjectLabels(inv) {
			if seen[label] || label == "" {
				continue
			}
			pg := inv.Projects[label]
			synth := &registry.Project{Name: label, ProjectDir: pg.WorkingDir, RepoRoot: pg.WorkingDir}
			out = append(out, r.projectProjection(synth, pg, false))
		}
	}

	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out
}

func (r *Reconciler) projectProjection(p *registry.Project, pg *runtimeinv.ProjectGroup, registered bool) ProjectProjection {
	proj := ProjectProjection{
		ID:              p.ID,
		Name:            p.Name,
		RepoRoot:        p.RepoRoot,
		ProjectDir:      p.ProjectDir,
		DefinedServices: DefinedServices(p.ProjectDir),
	}
	if p.DevHost != nil {
		proj.DevHost = *p.DevHost
	}

	if pg != nil {
		proj.RuntimeServices = lo.Keys(pg.Services)
		sort.Strings(proj.RuntimeServices)
		proj.RunningCount = pg.RunningCount()
	}

	proj.Status = r.classify(p.ProjectDir, proj.RunningCount, registered)
	return proj
}

func (r *Reconciler) classify(projectDir string, runningCount int, registered bool) ProjectStatus {
	if _, err := os.Stat(projectDir); err != nil && os.IsNotExist(err) {
		return ProjectMissing
	}
	if runningCount > 0 {
		return ProjectRunning
	}
	if !registered {
		return ProjectUnregistered
	}
	return ProjectStopped
}

func (r *Reconciler) gatewaySection(daemonInfo DaemonInfo) GatewaySection {
	gw := r.cfg.Extensions.Gateway

	records := r.tokens.List()
	counts := TokenCounts{Total: len(records)}
	for _, rec := range records {
		if rec.RevokedAt != nil {
			counts.Revoked++
			continue
		}
		switch rec.Scope {
		case tokens.ScopeRead:
			counts.Read++
		case tokens.ScopeWrite:
			counts.Write++
		}
	}

	daemonRunning := daemonInfo.Readiness == "running"
	exposures := make([]ExposureProjection, 0, 3)
	for _, kind := range []ExposureKind{ExposureLocalNetwork, ExposureMeshVPN, ExposurePublicTunnel} {
		cfg := r.cfg.Extensions.Exposures[string(kind)]
		state := EvaluateExposure(ExposureInputs{
			Kind:          kind,
			Cfg:           cfg,
			DaemonRunning: daemonRunning,
			GatewayBind:   gw.Bind,
		})
		exposures = append(exposures, ExposureProjection{Kind: kind, State: state})
	}

	return GatewaySection{
		Enabled:     gw.Enabled,
		Bind:        gw.Bind,
		Port:        gw.Port,
		AllowWrites: gw.AllowWrites,
		Exposures:   exposures,
		TokenCounts: counts,
	}
}

// SetIncludeAllInfra toggles the "include all" opt-in for global-infra
// filtering (§4.D, §4.F invariant S2).
func (r *Reconciler) SetIncludeAllInfra(include bool) {
	r.mu.Lock()
	r.includeAllInfra = include
	r.mu.Unlock()
}
