package combat

// CheckInitiative reports whether the player acts before the monster.
// The player wins with probability playerSpd/(playerSpd+monsterSpd); when both
// are zero the odds are even.
//
// Precondition: src must be non-nil; speeds must be >= 0.
func CheckInitiative(playerSpd, monsterSpd int, src Source) bool {
	total := playerSpd + monsterSpd
	if total <= 0 {
		return src.Intn(2) == 0
	}
	return src.Intn(total) < playerSpd
}
