package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hack-dance/hackd/pkg/config"
)

func TestExposureDisabledWhenConfigDisabled(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{Kind: ExposureLocalNetwork, Cfg: config.ExposureConfig{Enabled: false}})
	assert.Equal(t, ExposureDisabled, state)
}

func TestExposureUnknownWhenDependencyStatusUnreadable(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:             ExposureMeshVPN,
		Cfg:              config.ExposureConfig{Enabled: true, Fields: map[string]string{"x": "y"}},
		DaemonRunning:    true,
		GatewayBind:      "0.0.0.0",
		DependencyBinary: "tailscale",
		DependencyKnown:  false,
	})
	assert.Equal(t, ExposureUnknown, state)
}

func TestExposureBlockedWinsOverUnknownDependency(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:             ExposureMeshVPN,
		Cfg:              config.ExposureConfig{Enabled: true, Fields: map[string]string{"x": "y"}},
		DaemonRunning:    false,
		DependencyBinary: "tailscale",
		DependencyKnown:  false,
	})
	assert.Equal(t, ExposureBlocked, state, "a daemon-down signal must beat a malformed-dependency unknown")
}

func TestExposureBlockedWhenDaemonNotRunning(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:          ExposureLocalNetwork,
		Cfg:           config.ExposureConfig{Enabled: true, Fields: map[string]string{"x": "y"}},
		DaemonRunning: false,
	})
	assert.Equal(t, ExposureBlocked, state)
}

func TestExposureBlockedWinsOverNeedsConfig(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:          ExposureMeshVPN,
		Cfg:           config.ExposureConfig{Enabled: true},
		DaemonRunning: false,
		GatewayBind:   "127.0.0.1",
	})
	assert.Equal(t, ExposureBlocked, state)
}

func TestExposureNeedsConfigWhenNoFields(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:          ExposureLocalNetwork,
		Cfg:           config.ExposureConfig{Enabled: true},
		DaemonRunning: true,
		GatewayBind:   "0.0.0.0",
	})
	assert.Equal(t, ExposureNeedsConfig, state)
}

func TestExposureRunningWhenBindSatisfiesPublicRequirement(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:          ExposurePublicTunnel,
		Cfg:           config.ExposureConfig{Enabled: true, Fields: map[string]string{"domain": "example.test"}},
		DaemonRunning: true,
		GatewayBind:   "0.0.0.0",
	})
	assert.Equal(t, ExposureRunning, state)
}

func TestExposureBlockedWhenPublicKindStillLoopback(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:          ExposurePublicTunnel,
		Cfg:           config.ExposureConfig{Enabled: true, Fields: map[string]string{"domain": "example.test"}},
		DaemonRunning: true,
		GatewayBind:   "127.0.0.1",
	})
	assert.Equal(t, ExposureBlocked, state)
}

func TestExposureRunningWhenLocalNetworkFieldsSetAndDaemonUp(t *testing.T) {
	state := EvaluateExposure(ExposureInputs{
		Kind:          ExposureLocalNetwork,
		Cfg:           config.ExposureConfig{Enabled: true, Fields: map[string]string{"subnet": "192.168.0.0/24"}},
		DaemonRunning: true,
		GatewayBind:   "0.0.0.0",
	})
	assert.Equal(t, ExposureRunning, state)
}
