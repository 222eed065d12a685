package dto

// PlanDTO represents one row of the subscription tier table
type PlanDTO struct {
	Tier     string         `json:"tier"`
	Features []string       `json:"features"`
	Ceilings map[string]int `json:"ceilings"` // -1 means unlimited
}

// EntitlementDTO represents the resolved entitlements of the current user
type EntitlementDTO struct {
	Tier     string         `json:"tier"`
	Features []string       `json:"features"`
	Ceilings map[string]int `json:"ceilings"`
}
