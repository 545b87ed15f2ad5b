package result

const (
	ResultUpdatePreChaos  = "[pre-chaos]: failed to create the run record"
	ChaosInjection        = "[chaos]: failed during attrition injection"
	GraceWindowUnresolved = "[post-chaos]: storage failure grace window did not resolve"
)
