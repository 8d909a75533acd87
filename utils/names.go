package utils

import (
	"fmt"
	"math/rand"
)

var adjectives = []string{
	"Swift", "Quick", "Fast", "Rapid", "Speedy", "Lightning", "Blazing",
	"Nimble", "Agile", "Sharp", "Smart", "Clever", "Bright", "Genius",
	"Elite", "Pro", "Master", "Epic", "Legendary", "Stellar",
}

var nouns = []string{
	"Coder", "Dev", "Hacker", "Ninja", "Wizard", "Master", "Guru",
	"Champion", "Legend", "Hero", "Ace", "Star", "Phoenix", "Dragon",
	"Tiger", "Eagle", "Wolf", "Lion", "Falcon", "Hawk",
}

// GeneratePlayerName returns a short, memorable display name for lazily
// created profiles, e.g. "SwiftNinja042".
func GeneratePlayerName() string {
	adj := adjectives[rand.Intn(len(adjectives))]
	noun := nouns[rand.Intn(len(nouns))]
	return fmt.Sprintf("%s%s%03d", adj, noun, rand.Intn(1000))
}
