package queue

import (
	"fmt"
	"math/rand"
)

// Codenames are generated server-side, human-memorable, and must match
// [a-z][a-z0-9-]{2,31}.
var adjectives = []string{
	"amber", "brisk", "calm", "dusty", "eager", "faint", "gentle", "hollow",
	"indigo", "jovial", "keen", "lively", "mellow", "noble", "olive", "pale",
}

var nouns = []string{
	"harbor", "ridge", "meadow", "canyon", "summit", "delta", "grove", "basin",
	"prairie", "lagoon", "plateau", "orchard", "cove", "thicket", "valley", "reef",
}

// generateCodename returns a new candidate codename. Callers are
// responsible for uniqueness checking and retrying on collision.
func generateCodename(rng *rand.Rand) string {
	adj := adjectives[rng.Intn(len(adjectives))]
	noun := nouns[rng.Intn(len(nouns))]
	suffix := rng.Intn(10000)
	return fmt.Sprintf("%s-%s-%04d", adj, noun, suffix)
}
