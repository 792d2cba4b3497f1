package adapter

// EstimateTokens provides a rough token count for adapters that don't
// report usage directly, using the standard four-characters-per-token
// approximation. cost.Tracker.RecordUsage takes whatever this returns
// at face value, the same way it would a real usage figure from an
// adapter that reports one.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64(len(text)/4) + 1
}
