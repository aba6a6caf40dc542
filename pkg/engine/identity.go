package engine

const (
	EngineName = "Benson Execution"
	EngineGID  = "GID-00-EXEC"
	EngineType = "Deterministic Execution Engine"
)

// Identity describes what the engine is. The capability flags are fixed at
// compile time; there is deliberately no way to set them.
type Identity struct {
	Name            string `json:"name"`
	GID             string `json:"gid"`
	Type            string `json:"type"`
	Learning        bool   `json:"learning"`
	Reasoning       bool   `json:"reasoning"`
	DecisionMaking  bool   `json:"decision_making"`
	Interpretation  bool   `json:"interpretation"`
	Optimization    bool   `json:"optimization"`
	OverrideAllowed bool   `json:"override_allowed"`
}

var identity = Identity{
	Name: EngineName,
	GID:  EngineGID,
	Type: EngineType,
}

// EngineIdentity returns the engine descriptor.
func EngineIdentity() Identity { return identity }

func (i Identity) auditDetails() map[string]any {
	return map[string]any{
		"name":             i.Name,
		"gid":              i.GID,
		"type":             i.Type,
		"learning":         i.Learning,
		"reasoning":        i.Reasoning,
		"decision_making":  i.DecisionMaking,
		"interpretation":   i.Interpretation,
		"optimization":     i.Optimization,
		"override_allowed": i.OverrideAllowed,
	}
}
