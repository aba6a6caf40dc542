package preflight_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/benson/pkg/preflight"
)

func TestLoopClosure_RequiresBER(t *testing.T) {
	e := preflight.NewLoopClosureEnforcer()

	res := e.CanCloseLoop(preflight.LoopClosureContext{PacID: "PAC-TEST-LOOP-01"})
	require.True(t, res.Failed())
	assert.Equal(t, preflight.GateBERRequired, res.GateID)
	assert.Equal(t, "BER required for loop closure", res.Failure.Message)
}

func TestLoopClosure_WrapWithoutBERIsDistinct(t *testing.T) {
	e := preflight.NewLoopClosureEnforcer()

	res := e.EnforceBERRequirement("PAC-TEST-LOOP-01", "WRAP-TEST-LOOP-01", "")
	require.True(t, res.Failed())
	assert.Equal(t, "WRAP is not a decision artifact", res.Failure.Message)
	assert.Contains(t, res.Failure.Details, "WRAP-TEST-LOOP-01")
}

func TestLoopClosure_PassesWithBER(t *testing.T) {
	e := preflight.NewLoopClosureEnforcer()

	assert.True(t, e.EnforceBERRequirement("PAC-TEST-LOOP-01", "WRAP-TEST-LOOP-01", "BER-TEST-LOOP-01").Passed())
	assert.True(t, e.EnforceBERRequirement("PAC-TEST-LOOP-01", "", "BER-TEST-LOOP-01").Passed())
}

func TestLoopClosure_LawReview(t *testing.T) {
	e := preflight.NewLoopClosureEnforcer()

	res := e.CanRequestLawReview(preflight.LoopClosureContext{PacID: "PAC-TEST-LOOP-01", HasWrap: true})
	require.True(t, res.Failed())
	assert.Contains(t, res.Failure.Details, "Issue BER-TEST-LOOP-01 first.")

	res = e.CanRequestLawReview(preflight.LoopClosureContext{PacID: "PAC-TEST-LOOP-01", HasBer: true, BerID: "BER-1"})
	assert.True(t, res.Passed())
}

func TestBERGate_NotPartOfMainChain(t *testing.T) {
	e := preflight.NewLoopClosureEnforcer()
	assert.True(t, e.Gate().Run(nil).Passed())
	assert.NotContains(t, preflight.ExecutionOrder, preflight.GateBERRequired)
}
