package domain

// FactorCategory groups catalog factors.
type FactorCategory string

const (
	CategoryFunnel      FactorCategory = "funnel"
	CategoryInteraction FactorCategory = "interaction"
	CategoryLead        FactorCategory = "lead"
	CategoryTime        FactorCategory = "time"
)

// FactorID identifies a factor in the closed catalog.
type FactorID string

const (
	FactorStagePosition      FactorID = "stage-position"
	FactorStageDwell         FactorID = "stage-dwell"
	FactorDaysWithoutContact FactorID = "days-without-contact"
	FactorUnansweredAttempts FactorID = "unanswered-attempts"
	FactorEngagement         FactorID = "engagement"
	FactorLeadScore          FactorID = "lead-score"
	FactorContactability     FactorID = "contactability"
	FactorLeadAge            FactorID = "lead-age"
	FactorDeadlineProximity  FactorID = "deadline-proximity"
)

// FactorDefinition describes one catalog entry.
type FactorDefinition struct {
	ID       FactorID       `json:"id"`
	Category FactorCategory `json:"category"`
	Label    string         `json:"label"`
}

var factorCatalog = []FactorDefinition{
	{ID: FactorStagePosition, Category: CategoryFunnel, Label: "Funnel stage position"},
	{ID: FactorStageDwell, Category: CategoryFunnel, Label: "Days in current stage"},
	{ID: FactorDaysWithoutContact, Category: CategoryInteraction, Label: "Days without contact"},
	{ID: FactorUnansweredAttempts, Category: CategoryInteraction, Label: "Unanswered attempts"},
	{ID: FactorEngagement, Category: CategoryInteraction, Label: "Recorded interactions"},
	{ID: FactorLeadScore, Category: CategoryLead, Label: "Lead score"},
	{ID: FactorContactability, Category: CategoryLead, Label: "Reachable contact data"},
	{ID: FactorLeadAge, Category: CategoryTime, Label: "Lead age"},
	{ID: FactorDeadlineProximity, Category: CategoryTime, Label: "Enrollment deadline proximity"},
}

// FactorCatalog returns the catalog in display order.
func FactorCatalog() []FactorDefinition {
	out := make([]FactorDefinition, len(factorCatalog))
	copy(out, factorCatalog)
	return out
}

// Valid reports whether id is in the catalog.
func (id FactorID) Valid() bool {
	_, ok := id.Definition()
	return ok
}

// Definition returns the catalog entry for id.
func (id FactorID) Definition() (FactorDefinition, bool) {
	for _, def := range factorCatalog {
		if def.ID == id {
			return def, true
		}
	}
	return FactorDefinition{}, false
}
