package tournament

// Stage is the cosmetic name of a round
type Stage string

const (
	StageKnockout Stage = "Knockout Stage"
	StageSemis    Stage = "Semi-Finals"
	StageFinals   Stage = "Finals"
)

// StageForRound maps a round number to its stage
func StageForRound(round int) Stage {
	switch {
	case round <= 1:
		return StageKnockout
	case round == 2:
		return StageSemis
	default:
		return StageFinals
	}
}

// IsFinals reports whether the stage is the finals
func (s Stage) IsFinals() bool {
	return s == StageFinals
}
