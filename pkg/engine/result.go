package engine

import "github.com/Mindburn-Labs/benson/pkg/ingress"

// Outcome is either *AdmitResult or *RejectResult.
type Outcome interface {
	Admitted() bool
	outcome()
}

// AdmitResult carries the execution token issued for an admitted PAC.
type AdmitResult struct {
	PacID          string         `json:"pac_id"`
	ExecutionToken string         `json:"execution_token"`
	Decision       *ingress.Admit `json:"decision"`
}

func (*AdmitResult) Admitted() bool { return true }
func (*AdmitResult) outcome()       {}

// RejectResult never carries a token.
type RejectResult struct {
	PacID    string               `json:"pac_id"`
	Reason   ingress.RejectReason `json:"reason"`
	Summary  string               `json:"summary"`
	Errors   []string             `json:"errors"`
	Decision *ingress.Reject      `json:"decision"`
}

func (*RejectResult) Admitted() bool { return false }
func (*RejectResult) outcome()       {}
