package audit

// LatestProfile mirrors GET /audit/latest-profile. Result is nil until the
// backend has computed a profile, in which case Message carries its notice.
type LatestProfile struct {
	Result  *ProfileResult `json:"result,omitempty"`
	Message string         `json:"message,omitempty"`
}

// ProfileResult is the backend's suitability classification.
type ProfileResult struct {
	Profile             string             `json:"profile"`
	Score               Score              `json:"score"`
	Explanation         Explanation        `json:"explanation"`
	Allocation          map[string]float64 `json:"allocation"`
	RecommendedProducts []string           `json:"recommended_products"`
	Disclaimer          string             `json:"disclaimer"`
	AssessedBy          string             `json:"assessed_by"`
	AssessedAt          string             `json:"assessed_at,omitempty"`
}

// Explanation carries the reasoning behind a profile.
type Explanation struct {
	Methodology         string           `json:"methodology,omitempty"`
	BlockScores         map[string]Score `json:"block_scores"`
	RestrictionsApplied []Restriction    `json:"restrictions_applied"`
	CoherenceChecks     []CoherenceCheck `json:"coherence_checks"`
	Adjustments         []string         `json:"adjustments,omitempty"`
	RawProfile          string           `json:"raw_profile,omitempty"`
	FinalProfile        string           `json:"final_profile,omitempty"`
}

// Restriction is a regulatory rule that capped or lowered the profile.
type Restriction struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
	Effect string `json:"effect"`
}

// CoherenceCheck flags inconsistent answers.
type CoherenceCheck struct {
	Flag           string `json:"flag"`
	Detail         string `json:"detail"`
	Recommendation string `json:"recommendation"`
}
