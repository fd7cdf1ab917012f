package extras

import "oshirase/internal/media"

// ScheduleSet builds a title-keyed set from schedule entries.
func ScheduleSet(entries []media.Schedule) (*Set, error) {
	set := NewSet(KindSchedule)
	for _, entry := range entries {
		if _, err := set.Add(FromSchedule(entry)); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// LatestSet builds a title-keyed set of latest releases for kind.
func LatestSet(kind Kind, entries []media.Latest) (*Set, error) {
	set := NewSet(kind)
	for _, entry := range entries {
		if _, err := set.Add(FromLatest(kind, entry)); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// AltTitlesSet builds an id-keyed set of alias lists.
func AltTitlesSet(entries []media.AltTitlesEntry) (*Set, error) {
	set := NewSet(KindAltTitles)
	for _, entry := range entries {
		if _, err := set.Add(FromAltTitles(entry)); err != nil {
			return nil, err
		}
	}
	return set, nil
}
