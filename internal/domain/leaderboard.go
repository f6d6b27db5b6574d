package domain

// LeaderboardEntry is one ranked account. Tied balances share a rank.
type LeaderboardEntry struct {
	Rank    int64
	UserID  int64
	Balance int64
}

// Leaderboard holds the top entries and, when the requester is not among them, the requester's
// own position.
type Leaderboard struct {
	Entries   []LeaderboardEntry
	Requester *LeaderboardEntry
}

// Contains reports whether userID is among the top entries.
func (l Leaderboard) Contains(userID int64) bool {
	for _, entry := range l.Entries {
		if entry.UserID == userID {
			return true
		}
	}
	return false
}
