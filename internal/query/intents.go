package query

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

type intentsFile struct {
	Fallback string   `toml:"fallback"`
	Intents  []Intent `toml:"intent"`
}

// LoadIntents reads [[intent]] tables and an optional top-level fallback
// from a TOML file.
func LoadIntents(path string) ([]Intent, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read intents file: %w", err)
	}

	var f intentsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parse intents file: %w", err)
	}
	if len(f.Intents) == 0 {
		return nil, "", fmt.Errorf("intents file %s defines no intents", path)
	}
	return f.Intents, f.Fallback, nil
}

// DefaultIntents is the built-in assistant vocabulary, in priority order.
// Templates render against the aggregated state of the asked region.
func DefaultIntents() []Intent {
	return []Intent{
		{
			Name:     "air_quality",
			Triggers: []string{"air quality", "aqi", "pollution", "pm2.5", "pm25", "smog", "breathe"},
			Template: `{{if missing .Missing "aqi"}}No air quality data is available for {{.Region.Name}} right now.` +
				`{{else}}Air quality in {{.Region.Name}}: AQI {{round .Readings.AQI}}` +
				`{{if not (missing .Missing "pm25")}}, PM2.5 {{f1 .Readings.PM25}} µg/m³{{end}}. ` +
				`{{.AirQuality.Condition}}. {{.AirQuality.Action}}{{end}}`,
			Effect: "filter=air_quality",
		},
		{
			Name:     "irrigation",
			Triggers: []string{"irrigat", "water my", "watering", "sprinkler", "crop"},
			Template: `Irrigation advice for {{.Region.Name}} ({{.Recommendation.Urgency}} urgency): ` +
				`{{.Recommendation.Condition}}. {{.Recommendation.Action}}`,
			Effect: "filter=irrigation",
		},
		{
			Name:     "forecast",
			Triggers: []string{"forecast", "week", "tomorrow", "next days", "prediction"},
			Template: `7-day outlook for {{.Region.Name}}: ` +
				`{{range $i, $p := .Forecast}}{{if $i}}; {{end}}{{$p.Label}} {{f1 $p.TemperatureC}}°C, ` +
				`{{round $p.PrecipitationProbability}}% rain{{if $p.Synthesized}} (estimate){{end}}{{end}}.`,
			Effect: "filter=forecast",
		},
		{
			Name:     "rainfall",
			Triggers: []string{"rain", "precipitation", "monsoon"},
			Template: `Recent rainfall in {{.Region.Name}}: {{f1 .Readings.RainfallMm}} mm.`,
		},
		{
			Name:     "temperature",
			Triggers: []string{"temperature", "hot", "cold", "heat", "weather"},
			Template: `It is {{f1 .Readings.TemperatureC}}°C in {{.Region.Name}} with {{round .Readings.HumidityPct}}% humidity.`,
		},
		{
			Name:     "soil",
			Triggers: []string{"soil", "moisture"},
			Template: `Soil moisture in {{.Region.Name}} is {{round .Readings.SoilMoisturePct}}%.`,
		},
		{
			Name:     "satellite",
			Triggers: []string{"satellite", "imagery", "nasa"},
			Template: `Satellite imagery for {{.Region.Name}} is ` +
				`{{if .Readings.SatelliteAvailable}}available{{else}}not available{{end}}.`,
		},
		{
			Name:     "recommendation",
			Triggers: []string{"recommend", "advice", "advise", "should i", "what to do"},
			Template: `Top recommendation for {{.Region.Name}}: {{.Recommendation.Action}} ` +
				`Air: {{.AirQuality.Action}}`,
		},
		{
			Name:     "freshness",
			Triggers: []string{"fresh", "updated", "stale", "last update"},
			Template: `Data for {{.Region.Name}} was fetched at {{.DataFreshness.Format "2006-01-02 15:04 MST"}}` +
				`{{if .Stale}} and may be out of date{{end}}{{if .Missing}}; missing: {{join .Missing}}{{end}}.`,
		},
		{
			Name:     "help",
			Triggers: []string{"help", "hello", "what can you"},
			Template: DefaultFallback,
		},
	}
}
