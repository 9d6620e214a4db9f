package sim

import (
	"math"
	"sort"
)

// InsertOutcome classifies a hall-of-fame insertion attempt.
type InsertOutcome string

const (
	OutcomeInserted     InsertOutcome = "inserted"
	OutcomeReplaced     InsertOutcome = "replaced"
	OutcomeExcluded     InsertOutcome = "excluded"
	OutcomeNotBetter    InsertOutcome = "duplicate_not_better"
	OutcomeScoreTooLow  InsertOutcome = "score_too_low"
	OutcomeInvalidScore InsertOutcome = "invalid_score"
	OutcomeCheckFailed  InsertOutcome = "check_failed"
)

// InsertResult reports what an insertion did. Pos is the index of the new
// entry (-1 if not inserted); ExistingPos is the index the same key held
// before the call (-1 if absent).
type InsertResult struct {
	Outcome     InsertOutcome
	Key         string
	Success     bool
	Score       float64
	CheckPassed bool
	Excluded    bool
	Pos         int
	ExistingPos int
}

// HallOfFameEntry is one ranked item.
type HallOfFameEntry[T any] struct {
	Score float64
	Key   string
	Value T
}

// HallOfFame keeps at most capacity entries with distinct keys, ordered by
// score descending. Among equal scores earlier insertions rank first. Keys in
// the exclusion set are never inserted.
type HallOfFame[T any] struct {
	capacity int
	entries  []HallOfFameEntry[T]
	excluded map[string]struct{}
}

// NewHallOfFame creates an empty hall of fame. capacity must be positive.
func NewHallOfFame[T any](capacity int) (*HallOfFame[T], error) {
	if capacity < 1 {
		return nil, configErrorf("halloffame_size", "must be >= 1, got %d", capacity)
	}
	return &HallOfFame[T]{
		capacity: capacity,
		entries:  make([]HallOfFameEntry[T], 0, capacity+1),
		excluded: map[string]struct{}{},
	}, nil
}

// Insert offers value under key with score. The check predicate has already
// passed, so CheckPassed is always true in the result.
func (h *HallOfFame[T]) Insert(key string, score float64, value T) InsertResult {
	res := InsertResult{Key: key, Score: score, CheckPassed: true, Pos: -1, ExistingPos: -1}
	if _, ok := h.excluded[key]; ok {
		res.Outcome = OutcomeExcluded
		res.Excluded = true
		return res
	}
	if math.IsNaN(score) {
		res.Outcome = OutcomeInvalidScore
		return res
	}

	res.ExistingPos = h.find(key)
	if res.ExistingPos >= 0 {
		if score <= h.entries[res.ExistingPos].Score {
			res.Outcome = OutcomeNotBetter
			return res
		}
		h.entries = append(h.entries[:res.ExistingPos], h.entries[res.ExistingPos+1:]...)
		res.Pos = h.insertSorted(HallOfFameEntry[T]{Score: score, Key: key, Value: value})
		res.Outcome = OutcomeReplaced
		res.Success = true
		return res
	}

	if len(h.entries) >= h.capacity && score <= h.entries[len(h.entries)-1].Score {
		res.Outcome = OutcomeScoreTooLow
		return res
	}
	res.Pos = h.insertSorted(HallOfFameEntry[T]{Score: score, Key: key, Value: value})
	if len(h.entries) > h.capacity {
		h.entries = h.entries[:h.capacity]
	}
	res.Outcome = OutcomeInserted
	res.Success = true
	return res
}

// insertSorted places e after every entry with a score >= e.Score.
func (h *HallOfFame[T]) insertSorted(e HallOfFameEntry[T]) int {
	pos := sort.Search(len(h.entries), func(i int) bool { return h.entries[i].Score < e.Score })
	h.entries = append(h.entries, HallOfFameEntry[T]{})
	copy(h.entries[pos+1:], h.entries[pos:])
	h.entries[pos] = e
	return pos
}

func (h *HallOfFame[T]) find(key string) int {
	for i := range h.entries {
		if h.entries[i].Key == key {
			return i
		}
	}
	return -1
}

// Len is the number of entries.
func (h *HallOfFame[T]) Len() int { return len(h.entries) }

// Capacity is the maximum number of entries.
func (h *HallOfFame[T]) Capacity() int { return h.capacity }

// Entries returns the entries, best first. The slice is a copy.
func (h *HallOfFame[T]) Entries() []HallOfFameEntry[T] {
	return append([]HallOfFameEntry[T](nil), h.entries...)
}

// Contains reports whether key is currently ranked.
func (h *HallOfFame[T]) Contains(key string) bool { return h.find(key) >= 0 }

// Exclude adds key to the exclusion set. An entry already ranked under key
// stays until Clear.
func (h *HallOfFame[T]) Exclude(key string) { h.excluded[key] = struct{}{} }

// IsExcluded reports whether key is in the exclusion set.
func (h *HallOfFame[T]) IsExcluded(key string) bool {
	_, ok := h.excluded[key]
	return ok
}

// ExcludedCount is the size of the exclusion set.
func (h *HallOfFame[T]) ExcludedCount() int { return len(h.excluded) }

// ClearExcluded empties the exclusion set.
func (h *HallOfFame[T]) ClearExcluded() { h.excluded = map[string]struct{}{} }

// Clear removes all entries. The exclusion set is kept.
func (h *HallOfFame[T]) Clear() { h.entries = h.entries[:0] }
