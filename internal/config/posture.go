package config

import "time"

// Posture defines how hard discovery leans on the bench and the LAN
type Posture string

const (
	PostureCautious   Posture = "cautious"   // Slow instruments, shared lab network
	PostureBalanced   Posture = "balanced"   // Default bench behavior
	PostureAggressive Posture = "aggressive" // Fast instruments, dedicated network
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "cautious":
		return PostureCautious
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// ScanProfile defines discovery timing and concurrency
type ScanProfile struct {
	IdentifyTimeout     time.Duration
	IdentifyConcurrency int
	ProbeTimeout        time.Duration
	ProbeConcurrency    int
	NetworkTimeout      time.Duration
}

// PostureProfiles maps postures to their default scan profiles
var PostureProfiles = map[Posture]ScanProfile{
	PostureCautious: {
		IdentifyTimeout:     5 * time.Second,
		IdentifyConcurrency: 1,
		ProbeTimeout:        time.Second,
		ProbeConcurrency:    16,
		NetworkTimeout:      60 * time.Second,
	},
	PostureBalanced: {
		IdentifyTimeout:     3 * time.Second,
		IdentifyConcurrency: 4,
		ProbeTimeout:        500 * time.Millisecond,
		ProbeConcurrency:    64,
		NetworkTimeout:      20 * time.Second,
	},
	PostureAggressive: {
		IdentifyTimeout:     2 * time.Second,
		IdentifyConcurrency: 16,
		ProbeTimeout:        250 * time.Millisecond,
		ProbeConcurrency:    256,
		NetworkTimeout:      10 * time.Second,
	},
}

// GetProfile returns the scan profile for a posture
func (p Posture) GetProfile() ScanProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
