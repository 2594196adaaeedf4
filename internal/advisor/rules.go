package advisor

// IrrigationRules is the irrigation table in priority order.
func IrrigationRules() []Rule {
	return []Rule{
		{
			Name:      "soil-critical",
			When:      func(r CurrentReadings) bool { return r.SoilMoisturePct < 50 },
			Condition: "soil moisture critically low",
			Action:    "Irrigate now: apply a full watering cycle today.",
			Urgency:   UrgencyHigh,
		},
		{
			Name: "heat-evaporation",
			When: func(r CurrentReadings) bool {
				return r.SoilMoisturePct < 60 && r.TemperatureC > 30
			},
			Condition: "high temperature increasing evaporation",
			Action:    "Irrigate in the early morning or evening to limit evaporation losses.",
			Urgency:   UrgencyMedium,
		},
		{
			Name: "preventive",
			When: func(r CurrentReadings) bool {
				return r.SoilMoisturePct < 65 && r.RainfallMm == 0
			},
			Condition: "preventive action recommended",
			Action:    "Plan a light irrigation within the next 24 hours.",
			Urgency:   UrgencyLow,
		},
	}
}

// IrrigationFallback applies when no irrigation rule matches.
var IrrigationFallback = Recommendation{
	Rule:      "optimal",
	Condition: "conditions optimal, no action needed",
	Action:    "No irrigation needed.",
	Urgency:   UrgencyNone,
}

// NewIrrigationEngine returns an engine for the irrigation table.
func NewIrrigationEngine() *Engine {
	return NewEngine(IrrigationRules(), IrrigationFallback)
}

// AirQualityRules grades the US AQI.
func AirQualityRules() []Rule {
	return []Rule{
		{
			Name:      "aqi-hazardous",
			When:      func(r CurrentReadings) bool { return r.AQI >= 300 },
			Condition: "air quality hazardous",
			Action:    "Stay indoors and suspend all outdoor field work.",
			Urgency:   UrgencyCritical,
		},
		{
			Name:      "aqi-very-unhealthy",
			When:      func(r CurrentReadings) bool { return r.AQI >= 200 },
			Condition: "air quality very unhealthy",
			Action:    "Avoid outdoor exertion; wear an N95 mask if outside.",
			Urgency:   UrgencyHigh,
		},
		{
			Name:      "aqi-unhealthy",
			When:      func(r CurrentReadings) bool { return r.AQI >= 150 },
			Condition: "air quality unhealthy",
			Action:    "Limit prolonged outdoor activity.",
			Urgency:   UrgencyMedium,
		},
		{
			Name:      "aqi-sensitive",
			When:      func(r CurrentReadings) bool { return r.AQI >= 100 },
			Condition: "air quality unhealthy for sensitive groups",
			Action:    "Sensitive groups should reduce time outdoors.",
			Urgency:   UrgencyLow,
		},
	}
}

// AirQualityFallback applies when the AQI is below every threshold.
var AirQualityFallback = Recommendation{
	Rule:      "aqi-good",
	Condition: "air quality acceptable",
	Action:    "No precautions needed.",
	Urgency:   UrgencyNone,
}

// AirQualityUnknown is reported instead of an evaluation when no provider
// supplied an AQI.
var AirQualityUnknown = Recommendation{
	Rule:      "aqi-unknown",
	Condition: "air quality data unavailable",
	Action:    "Check again later.",
	Urgency:   UrgencyNone,
}

// NewAirQualityEngine returns an engine for the air-quality table.
func NewAirQualityEngine() *Engine {
	return NewEngine(AirQualityRules(), AirQualityFallback)
}
