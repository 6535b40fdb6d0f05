package orchestrator

import "github.com/opsai/opsai/pkg/worker"

// RiskPolicy gates instruction execution by comparing its risk level to a
// mode-specific ceiling (spec §4.3 step 3). CLIMaxRisk defaults to safe;
// TUIMaxRisk defaults to high — OpsAI only exposes a CLI surface, so
// TUIMaxRisk exists for config-schema parity with the original but is
// unused by cmd/opsai today.
type RiskPolicy struct {
	MaxRisk         worker.RiskLevel
	AutoApproveSafe bool
	// ApprovalFloor is the lowest risk level that requires a Host.Approve
	// call before dispatch, even when under MaxRisk.
	ApprovalFloor worker.RiskLevel
}

// DefaultRiskPolicy returns the CLI-mode default: ceiling at safe,
// auto-approving safe actions, and never requiring approval beyond the
// ceiling (nothing above safe can run, so there is nothing left to
// approve).
func DefaultRiskPolicy() RiskPolicy {
	return RiskPolicy{MaxRisk: worker.RiskSafe, AutoApproveSafe: true, ApprovalFloor: worker.RiskLow}
}

// Allowed reports whether risk is within the policy ceiling.
func (p RiskPolicy) Allowed(risk worker.RiskLevel) bool {
	return risk <= p.MaxRisk
}

// RequiresApproval reports whether an allowed instruction still needs an
// explicit user approval before dispatch.
func (p RiskPolicy) RequiresApproval(risk worker.RiskLevel) bool {
	if risk == worker.RiskSafe && p.AutoApproveSafe {
		return false
	}
	return risk >= p.ApprovalFloor
}
