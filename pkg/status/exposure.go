package status

import (
	"github.com/hack-dance/hackd/pkg/config"
)

// ExposureInputs are the signals the exposure state machine evaluates each
// snapshot (§4.F "Exposure state machine"). None of this is persisted.
type ExposureInputs struct {
	Kind             ExposureKind
	Cfg              config.ExposureConfig
	DaemonRunning    bool
	GatewayBind      string
	DependencyBinary string // empty if this exposure needs no external binary
	DependencyOK     bool   // only meaningful when DependencyBinary != ""
	DependencyKnown  bool   // false if the dependency tool returned malformed status
}

// requiresPublicBind reports whether this exposure kind can only be
// "running" when the gateway binds somewhere other than loopback.
func requiresPublicBind(kind ExposureKind) bool {
	return kind == ExposureMeshVPN || kind == ExposurePublicTunnel
}

func isLoopback(bind string) bool {
	return bind == "" || bind == "127.0.0.1" || bind == "::1" || bind == "localhost"
}

// EvaluateExposure runs the §4.F state machine for one exposure channel.
// Tie-break: blocked wins over needs-config; unknown wins only when no
// other signal is available.
func EvaluateExposure(in ExposureInputs) ExposureState {
	if !in.Cfg.Enabled {
		return ExposureDisabled
	}

	blocked := !in.DaemonRunning ||
		(requiresPublicBind(in.Kind) && isLoopback(in.GatewayBind)) ||
		(in.DependencyBinary != "" && in.DependencyKnown && !in.DependencyOK)
	if blocked {
		return ExposureBlocked
	}

	configured := len(in.Cfg.Fields) > 0
	if !configured {
		return ExposureNeedsConfig
	}

	if in.DependencyBinary != "" && !in.DependencyKnown {
		return ExposureUnknown
	}

	if bindSatisfies(in.Kind, in.GatewayBind) {
		return ExposureRunning
	}

	return ExposureConfigured
}

func bindSatisfies(kind ExposureKind, bind string) bool {
	if requiresPublicBind(kind) {
		return !isLoopback(bind)
	}
	return true
}
