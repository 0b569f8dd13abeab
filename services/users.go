package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"excel2jira/models"
	"excel2jira/utils"
)

// ErrUserNotFound is returned when no account is close enough to a name
var ErrUserNotFound = errors.New("no matching Jira user")

// minSubstringLength keeps initials like "Al" from matching every "Alice" and "Sally"
const minSubstringLength = 3

// UserDirectory lists the accounts names are resolved against
type UserDirectory interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// UserMatcher picks the account that best matches a free-text name
type UserMatcher interface {
	Match(name string, users []models.User) (models.User, float64, bool)
}

// SimilarityMatcher matches by case-insensitive substring first, then by
// sequence similarity over display name and email local-part.
type SimilarityMatcher struct {
	Threshold float64
}

// Match returns the best user and its score, or false when nothing clears the threshold
func (m SimilarityMatcher) Match(name string, users []models.User) (models.User, float64, bool) {
	needle := normalizeName(name)
	if needle == "" {
		return models.User{}, 0, false
	}

	if u, ok := substringMatch(needle, users); ok {
		return u, 1.0, true
	}

	var best models.User
	bestScore := 0.0
	found := false

	for _, u := range users {
		score := nameScore(needle, u)
		if score < m.Threshold {
			continue
		}
		if !found || score > bestScore {
			best, bestScore, found = u, score, true
		}
	}

	return best, bestScore, found
}

// substringMatch picks among users whose display name or email local-part
// contains the needle. Whole-word hits rank first, then the closer overall
// name, then directory order.
func substringMatch(needle string, users []models.User) (models.User, bool) {
	if len([]rune(needle)) < minSubstringLength {
		return models.User{}, false
	}

	var best models.User
	bestWhole, bestScore := false, 0.0
	found := false
	for _, u := range users {
		display := normalizeName(u.DisplayName)
		local := strings.ToLower(u.EmailLocalPart())
		if !strings.Contains(display, needle) && !strings.Contains(local, needle) {
			continue
		}

		whole := containsTokens(nameTokens(display), nameTokens(needle)) ||
			containsTokens(nameTokens(local), nameTokens(needle))
		score := nameScore(needle, u)

		switch {
		case !found:
		case whole != bestWhole:
			if !whole {
				continue
			}
		case score <= bestScore:
			continue
		}
		best, bestWhole, bestScore, found = u, whole, score, true
	}

	return best, found
}

// nameTokens splits a name or email local-part into words
func nameTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '.' || r == '_' || r == '-'
	})
}

// containsTokens reports whether want appears as a contiguous run in have
func containsTokens(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(have); i++ {
		match := true
		for j, w := range want {
			if have[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// nameScore is the best similarity of the name against the user's identifiers
func nameScore(needle string, u models.User) float64 {
	score := utils.SequenceSimilarity(needle, normalizeName(u.DisplayName))

	if local := strings.ToLower(u.EmailLocalPart()); local != "" {
		score = max(score,
			utils.SequenceSimilarity(needle, local),
			utils.SequenceSimilarity(strings.ReplaceAll(needle, " ", "."), local),
		)
	}

	return score
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// UserResolver resolves names to Jira accounts. The directory is fetched on
// first use and reused for the rest of the run.
type UserResolver struct {
	directory UserDirectory
	matcher   UserMatcher

	users   []models.User
	loaded  bool
	loadErr error
}

// NewUserResolver creates a resolver over directory using matcher
func NewUserResolver(directory UserDirectory, matcher UserMatcher) *UserResolver {
	return &UserResolver{
		directory: directory,
		matcher:   matcher,
	}
}

// Resolve returns the account best matching name.
// It fails with ErrUserNotFound, or with the directory error if users could not be listed.
func (r *UserResolver) Resolve(ctx context.Context, name string) (*models.User, float64, error) {
	users, err := r.load(ctx)
	if err != nil {
		return nil, 0, err
	}

	user, score, ok := r.matcher.Match(name, users)
	if !ok {
		utils.LogDebug("No user found matching '%s'", name)
		return nil, 0, fmt.Errorf("%w for '%s'", ErrUserNotFound, name)
	}

	utils.LogDebug("Matched '%s' to %s <%s> (similarity %.2f)", name, user.DisplayName, user.EmailAddress, score)
	return &user, score, nil
}

func (r *UserResolver) load(ctx context.Context) ([]models.User, error) {
	if !r.loaded {
		r.users, r.loadErr = r.directory.ListUsers(ctx)
		r.loaded = true
		if r.loadErr != nil {
			utils.LogError("Failed to load Jira users: %v", r.loadErr)
		} else {
			utils.LogInfo("Loaded %d Jira users", len(r.users))
		}
	}
	return r.users, r.loadErr
}
