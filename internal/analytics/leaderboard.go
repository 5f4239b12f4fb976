package analytics

import (
	"fmt"
	"sort"

	"quiz-analytics/internal/domain"
)

// ParseLevel maps a query value onto a group level.
func ParseLevel(raw string) (domain.GroupLevel, error) {
	switch level := domain.GroupLevel(raw); level {
	case domain.LevelSection, domain.LevelDepartment, domain.LevelInstitution:
		return level, nil
	}
	return "", fmt.Errorf("%w: unknown level %q", domain.ErrInvalidScope, raw)
}

// ScopeFor returns the scope at level that contains st.
func ScopeFor(level domain.GroupLevel, st domain.Student) domain.Scope {
	switch level {
	case domain.LevelSection:
		return domain.Scope{Level: level, Department: st.DepartmentKey(), Section: st.SectionOrUnknown()}
	case domain.LevelDepartment:
		return domain.Scope{Level: level, Department: st.DepartmentKey()}
	}
	return domain.Scope{Level: domain.LevelInstitution}
}

// ScopeRoster selects the students a scope covers.
func ScopeRoster(scope domain.Scope, roster []domain.Student) ([]domain.Student, error) {
	var keep func(domain.Student) bool
	switch scope.Level {
	case domain.LevelInstitution:
		keep = func(domain.Student) bool { return true }
	case domain.LevelDepartment:
		if scope.Department == "" {
			return nil, fmt.Errorf("%w: department scope needs a department", domain.ErrInvalidScope)
		}
		keep = func(st domain.Student) bool { return st.DepartmentKey() == scope.Department }
	case domain.LevelSection:
		if scope.Department == "" || scope.Section == "" {
			return nil, fmt.Errorf("%w: section scope needs a department and a section", domain.ErrInvalidScope)
		}
		keep = func(st domain.Student) bool {
			return st.DepartmentKey() == scope.Department && st.SectionOrUnknown() == scope.Section
		}
	default:
		return nil, fmt.Errorf("%w: unknown level %q", domain.ErrInvalidScope, scope.Level)
	}

	members := make([]domain.Student, 0, len(roster))
	for _, st := range roster {
		if keep(st) {
			members = append(members, st)
		}
	}
	return members, nil
}

// Leaderboard ranks every student the scope covers.
func (e *Engine) Leaderboard(scope domain.Scope, roster []domain.Student, subs []domain.Submission) ([]domain.LeaderboardEntry, error) {
	members, err := ScopeRoster(scope, roster)
	if err != nil {
		return nil, err
	}
	return e.BuildLeaderboard(members, subs), nil
}

// BuildLeaderboard ranks members by average score. Students without scored
// submissions are listed with a zero average. Ranks run 1..n with no shared
// positions.
func (e *Engine) BuildLeaderboard(members []domain.Student, subs []domain.Submission) []domain.LeaderboardEntry {
	return buildLeaderboard(members, indexByStudent(e.cleaned(subs)))
}

func buildLeaderboard(members []domain.Student, byStudent map[string][]domain.Submission) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(members))
	for _, st := range members {
		own := byStudent[st.ID]
		entry := domain.LeaderboardEntry{
			StudentID:        st.ID,
			DisplayName:      st.DisplayName,
			SubmissionsCount: len(own),
		}
		if m, err := studentMetrics(st.ID, own); err == nil {
			entry.AverageScore = m.AverageScore
			entry.HasData = true
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return leaderboardBefore(entries[i], entries[j])
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

func leaderboardBefore(a, b domain.LeaderboardEntry) bool {
	// Ranking policy:
	// 1) higher average first
	// 2) display name lexical order
	// 3) student id so duplicate names stay deterministic
	if a.AverageScore != b.AverageScore {
		return a.AverageScore > b.AverageScore
	}
	if a.DisplayName != b.DisplayName {
		return a.DisplayName < b.DisplayName
	}
	return a.StudentID < b.StudentID
}

// RankOf returns the 1-based position of studentID, or 0 when it is not listed.
func RankOf(entries []domain.LeaderboardEntry, studentID string) int {
	for i, entry := range entries {
		if entry.StudentID == studentID {
			return i + 1
		}
	}
	return 0
}
