package results

import (
	"math/rand"
)

const (
	maxLevel         = 32   // Max skip list height
	levelProbability = 0.25 // P=0.25 gives optimal balance
)

// rankEntry is one scored key. Higher scores rank first; equal scores
// rank by key.
type rankEntry struct {
	Key   string
	Score float64
}

func ranksBefore(a, b rankEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Key < b.Key
}

type skipNode struct {
	entry rankEntry
	next  []*skipNode // Forward pointers (one per level)
	span  []int       // Nodes skipped by each forward pointer
}

// skipList is an ordered set with O(log n) rank queries. Not safe for
// concurrent use; the Leaderboard serializes access.
type skipList struct {
	head   *skipNode
	level  int
	length int
	scores map[string]float64
	rng    *rand.Rand
}

func newSkipList(seed int64) *skipList {
	return &skipList{
		head: &skipNode{
			next: make([]*skipNode, maxLevel),
			span: make([]int, maxLevel),
		},
		level:  1,
		scores: make(map[string]float64),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

func (sl *skipList) randomLevel() int {
	level := 1
	for level < maxLevel && sl.rng.Float64() < levelProbability {
		level++
	}
	return level
}

// Insert adds key or moves it to its new score.
func (sl *skipList) Insert(key string, score float64) {
	if old, ok := sl.scores[key]; ok {
		if old == score {
			return
		}
		sl.Remove(key)
	}
	e := rankEntry{Key: key, Score: score}

	var update [maxLevel]*skipNode
	var rank [maxLevel]int

	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		if i < sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.next[i] != nil && ranksBefore(x.next[i].entry, e) {
			rank[i] += x.span[i]
			x = x.next[i]
		}
		update[i] = x
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level; i < newLevel; i++ {
			rank[i] = 0
			update[i] = sl.head
			update[i].span[i] = sl.length
		}
		sl.level = newLevel
	}

	node := &skipNode{
		entry: e,
		next:  make([]*skipNode, newLevel),
		span:  make([]int, newLevel),
	}
	for i := 0; i < newLevel; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
		node.span[i] = update[i].span[i] - (rank[0] - rank[i])
		update[i].span[i] = (rank[0] - rank[i]) + 1
	}
	// Levels above the new node now skip one more
	for i := newLevel; i < sl.level; i++ {
		update[i].span[i]++
	}

	sl.length++
	sl.scores[key] = score
}

// Remove deletes key. It reports whether key was present.
func (sl *skipList) Remove(key string) bool {
	score, ok := sl.scores[key]
	if !ok {
		return false
	}
	e := rankEntry{Key: key, Score: score}

	var update [maxLevel]*skipNode
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && ranksBefore(x.next[i].entry, e) {
			x = x.next[i]
		}
		update[i] = x
	}

	node := x.next[0]
	if node == nil || node.entry.Key != key {
		return false
	}
	for i := 0; i < sl.level; i++ {
		if update[i].next[i] == node {
			update[i].span[i] += node.span[i] - 1
			update[i].next[i] = node.next[i]
		} else {
			update[i].span[i]--
		}
	}
	for sl.level > 1 && sl.head.next[sl.level-1] == nil {
		sl.level--
	}

	sl.length--
	delete(sl.scores, key)
	return true
}

// Rank returns the 1-indexed rank of key, or 0 if absent.
func (sl *skipList) Rank(key string) int {
	score, ok := sl.scores[key]
	if !ok {
		return 0
	}
	e := rankEntry{Key: key, Score: score}

	rank := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && !ranksBefore(e, x.next[i].entry) {
			rank += x.span[i]
			x = x.next[i]
		}
		if x != sl.head && x.entry.Key == key {
			return rank
		}
	}
	return 0
}

// Score returns the score of key.
func (sl *skipList) Score(key string) (float64, bool) {
	s, ok := sl.scores[key]
	return s, ok
}

// Range returns entries ranked start..end inclusive (1-indexed).
func (sl *skipList) Range(start, end int) []rankEntry {
	if start <= 0 {
		start = 1
	}
	if end > sl.length {
		end = sl.length
	}
	if start > end {
		return nil
	}

	traversed := 0
	x := sl.head
	for i := sl.level - 1; i >= 0; i-- {
		for x.next[i] != nil && traversed+x.span[i] < start {
			traversed += x.span[i]
			x = x.next[i]
		}
	}

	out := make([]rankEntry, 0, end-start+1)
	for x = x.next[0]; x != nil && traversed < end; x = x.next[0] {
		traversed++
		out = append(out, x.entry)
	}
	return out
}

// Len returns the number of entries.
func (sl *skipList) Len() int {
	return sl.length
}
