package match

import (
	"fmt"
	"math"
	"strconv"

	"oshirase/internal/config"
	"oshirase/internal/extras"
	"oshirase/internal/media"
	"oshirase/internal/services"
	"oshirase/internal/textutil"
)

// Strategy names the rule that produced (or declined) a match.
type Strategy string

const (
	StrategyNone         Strategy = "none"
	StrategySkipped      Strategy = "skipped"
	StrategyID           Strategy = "id"
	StrategyTitle        Strategy = "title"
	StrategyEnglishTitle Strategy = "english_title"
	StrategyAltTitle     Strategy = "alt_title"
	StrategyFuzzy        Strategy = "fuzzy"
)

// Scorer returns a symmetric similarity in [0, 1] for two normalized strings.
type Scorer func(a, b string) float64

// ScorerByName maps a transform.scorer config value to a Scorer.
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "", config.ScorerLevenshtein:
		return textutil.NormalizedLevenshtein, nil
	case config.ScorerCosine:
		return textutil.TokenCosine, nil
	default:
		return nil, fmt.Errorf("unknown scorer %q", name)
	}
}

// Result describes the outcome of one resolution.
type Result struct {
	Extra    extras.Extra
	Key      string // normalized key that matched
	Strategy Strategy
	Score    float64 // 1 for exact strategies
	Found    bool
}

// Resolver links one list entry to at most one member of an extras set.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	scorer Scorer
}

// NewResolver returns a resolver using scorer for the fuzzy fallback. A nil
// scorer selects normalized Levenshtein similarity.
func NewResolver(scorer Scorer) *Resolver {
	if scorer == nil {
		scorer = textutil.NormalizedLevenshtein
	}
	return &Resolver{scorer: scorer}
}

// Resolve applies the precedence rules in order and stops at the first hit:
//
//  1. entries whose status is not CURRENT are skipped
//  2. id-keyed sets match on the entry id and nothing else
//  3. exact normalized title
//  4. exact normalized english title, then each alt title in list order
//  5. best fuzzy score over title and english title, accepted only when
//     strictly greater than threshold
//
// Equal fuzzy scores resolve to the lexicographically smallest key, so the
// outcome never depends on insertion or map order. Finding nothing is not an
// error; errors only report an unusable input.
func (r *Resolver) Resolve(record *media.Media, set *extras.Set, threshold float64) (Result, error) {
	if record == nil {
		return Result{}, services.Wrap(services.ErrValidation, "match", "resolve", "nil record", nil)
	}
	if set == nil {
		return Result{}, services.Wrap(services.ErrValidation, "match", "resolve", "nil extras set", nil)
	}
	if math.IsNaN(threshold) {
		return Result{}, services.Wrap(services.ErrValidation, "match", "resolve", "threshold is NaN", nil)
	}
	if !record.Current() {
		return Result{Strategy: StrategySkipped}, nil
	}

	if set.Keying() == extras.ByID {
		key := strconv.FormatInt(record.MediaID, 10)
		if e, ok := set.Get(key); ok {
			return Result{Extra: e, Key: key, Strategy: StrategyID, Score: 1, Found: true}, nil
		}
		return Result{Strategy: StrategyNone}, nil
	}

	title := extras.NormalizeTitle(record.Title)
	english := extras.NormalizeTitle(record.EnglishTitle)

	if res, ok := exact(set, title, StrategyTitle); ok {
		return res, nil
	}
	if res, ok := exact(set, english, StrategyEnglishTitle); ok {
		return res, nil
	}
	for _, alias := range record.AltTitles {
		if res, ok := exact(set, extras.NormalizeTitle(alias), StrategyAltTitle); ok {
			return res, nil
		}
	}

	return r.fuzzy(set, threshold, title, english), nil
}

func exact(set *extras.Set, key string, strategy Strategy) (Result, bool) {
	if key == "" {
		return Result{}, false
	}
	e, ok := set.Get(key)
	if !ok {
		return Result{}, false
	}
	return Result{Extra: e, Key: key, Strategy: strategy, Score: 1, Found: true}, true
}

func (r *Resolver) fuzzy(set *extras.Set, threshold float64, candidates ...string) Result {
	best := Result{Strategy: StrategyNone, Score: -1}
	for _, key := range set.Keys() {
		for _, candidate := range candidates {
			if candidate == "" {
				continue
			}
			// Keys ascend, so a strict comparison keeps the smallest key on ties.
			if score := r.scorer(candidate, key); score > best.Score {
				best.Score = score
				best.Key = key
			}
		}
	}
	if best.Key == "" || best.Score <= threshold {
		return Result{Strategy: StrategyNone, Score: max(best.Score, 0)}
	}
	e, _ := set.Get(best.Key)
	return Result{Extra: e, Key: best.Key, Strategy: StrategyFuzzy, Score: best.Score, Found: true}
}
