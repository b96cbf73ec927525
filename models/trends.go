package models

// MedicamentTrendEntry is one ranked medication in the trends payload.
// All numeric fields are pre-rounded for display: Boites/Euros to the
// nearest integer, the delta percentages to 1 decimal, score and bonus
// to 3 decimals.
type MedicamentTrendEntry struct {
	CIP13          string  `json:"cip13"`
	Label          string  `json:"label"`
	Boites         float64 `json:"boites"`
	Euros          float64 `json:"euros"`
	DeltaVolumePct float64 `json:"delta_volume_pct"`
	DeltaValeurPct float64 `json:"delta_valeur_pct"`
	ScoreTendance  float64 `json:"score_tendance"`
	BonusActu      float64 `json:"bonus_actu"`
}

// TrendsPayload is the externally visible result of one trend
// computation. Note is only set when the payload was served from the
// daily cache.
type TrendsPayload struct {
	Source       string                 `json:"source"`
	LatestFile   string                 `json:"latest_file"`
	PreviousFile string                 `json:"previous_file"`
	GeneratedAt  string                 `json:"generated_at"`
	Limit        int                    `json:"limit"`
	Items        []MedicamentTrendEntry `json:"items"`
	Note         string                 `json:"note,omitempty"`
}
