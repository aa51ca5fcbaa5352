package ingest

// KnownIDs is the set of record ids a run has already seen or loaded from
// the store. It only grows. One instance belongs to one run.
type KnownIDs struct {
	ids map[string]struct{}
}

func NewKnownIDs(ids ...string) *KnownIDs {
	k := &KnownIDs{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		k.ids[id] = struct{}{}
	}
	return k
}

// KnownIDsFromSet copies a set loaded from a store.
func KnownIDsFromSet(set map[string]struct{}) *KnownIDs {
	k := &KnownIDs{ids: make(map[string]struct{}, len(set))}
	for id := range set {
		k.ids[id] = struct{}{}
	}
	return k
}

func (k *KnownIDs) Has(id string) bool {
	_, ok := k.ids[id]
	return ok
}

// Add inserts id and reports whether it was absent.
func (k *KnownIDs) Add(id string) bool {
	if _, ok := k.ids[id]; ok {
		return false
	}
	k.ids[id] = struct{}{}
	return true
}

func (k *KnownIDs) Len() int {
	return len(k.ids)
}
