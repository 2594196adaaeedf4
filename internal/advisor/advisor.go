// Package advisor turns current readings into prioritized recommendations by
// walking ordered decision tables. The first matching rule wins.
package advisor

// Urgency is the recommendation tier.
type Urgency string

const (
	UrgencyNone     Urgency = "none"
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// CurrentReadings is the latest merged view of a region.
type CurrentReadings struct {
	SoilMoisturePct    float64 `json:"soilMoisturePct"`
	TemperatureC       float64 `json:"temperatureC"`
	RainfallMm         float64 `json:"rainfallMm"`
	HumidityPct        float64 `json:"humidityPct"`
	AQI                float64 `json:"aqi"`
	PM25               float64 `json:"pm25"`
	SatelliteAvailable bool    `json:"satelliteAvailable"`
}

// Recommendation is the outcome of one evaluation.
type Recommendation struct {
	Rule      string  `json:"rule"`
	Condition string  `json:"condition"`
	Action    string  `json:"action"`
	Urgency   Urgency `json:"urgency"`
}

// Rule is one row of a decision table.
type Rule struct {
	Name      string
	When      func(CurrentReadings) bool
	Condition string
	Action    string
	Urgency   Urgency
}

func (r Rule) recommendation() Recommendation {
	return Recommendation{
		Rule:      r.Name,
		Condition: r.Condition,
		Action:    r.Action,
		Urgency:   r.Urgency,
	}
}

// Engine evaluates a fixed decision table. It holds no mutable state.
type Engine struct {
	rules    []Rule
	fallback Recommendation
}

// NewEngine copies the table so later changes to rules do not affect the engine.
func NewEngine(rules []Rule, fallback Recommendation) *Engine {
	table := make([]Rule, len(rules))
	copy(table, rules)
	return &Engine{rules: table, fallback: fallback}
}

// Evaluate returns the first rule whose condition holds, or the fallback.
func (e *Engine) Evaluate(r CurrentReadings) Recommendation {
	for _, rule := range e.rules {
		if rule.When != nil && rule.When(r) {
			return rule.recommendation()
		}
	}
	return e.fallback
}

// Rules returns a copy of the table in priority order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}
