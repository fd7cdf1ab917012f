package extras

import (
	"errors"
	"fmt"
	"strconv"

	"oshirase/internal/media"
)

// Kind identifies which secondary source an Extra came from.
type Kind string

const (
	KindAltTitles   Kind = "alt_titles"
	KindSchedule    Kind = "schedule"
	KindAnimeLatest Kind = "anime_latest"
	KindMangaLatest Kind = "manga_latest"
)

// Keying describes the key space a Set uses.
type Keying int

const (
	// ByTitle sets are keyed by normalized title.
	ByTitle Keying = iota
	// ByID sets are keyed by the decimal list-entry id.
	ByID
)

func (k Keying) String() string {
	if k == ByID {
		return "id"
	}
	return "title"
}

// Keying returns the key space for the kind.
func (k Kind) Keying() Keying {
	if k == KindAltTitles {
		return ByID
	}
	return ByTitle
}

// Field returns the media field an extra of this kind fills.
func (k Kind) Field() media.Field {
	switch k {
	case KindAltTitles:
		return media.FieldAltTitles
	case KindSchedule:
		return media.FieldSchedule
	default:
		return media.FieldLatest
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindAltTitles, KindSchedule, KindAnimeLatest, KindMangaLatest:
		return true
	default:
		return false
	}
}

// Extra is one secondary-source record. Exactly one payload pointer is set and
// it must agree with Kind. Key is the raw (un-normalized) lookup key.
type Extra struct {
	Kind      Kind                  `json:"kind"`
	Key       string                `json:"key"`
	Schedule  *media.Schedule       `json:"schedule,omitempty"`
	Latest    *media.Latest         `json:"latest,omitempty"`
	AltTitles *media.AltTitlesEntry `json:"alt_titles,omitempty"`
}

// FromSchedule wraps a schedule entry keyed by its title.
func FromSchedule(s media.Schedule) Extra {
	return Extra{Kind: KindSchedule, Key: s.Title, Schedule: &s}
}

// FromLatest wraps a latest release keyed by its title. kind must be one of
// the latest kinds.
func FromLatest(kind Kind, l media.Latest) Extra {
	return Extra{Kind: kind, Key: l.Title, Latest: &l}
}

// FromAltTitles wraps an alias list keyed by its media id.
func FromAltTitles(e media.AltTitlesEntry) Extra {
	e.AltTitles = append([]string(nil), e.AltTitles...)
	return Extra{Kind: KindAltTitles, Key: strconv.FormatInt(e.MediaID, 10), AltTitles: &e}
}

// Validate checks the payload matches the declared kind.
func (e Extra) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("unknown extra kind %q", e.Kind)
	}
	set := 0
	for _, present := range []bool{e.Schedule != nil, e.Latest != nil, e.AltTitles != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("extra %s: expected exactly one payload, got %d", e.Kind, set)
	}
	switch e.Kind {
	case KindSchedule:
		if e.Schedule == nil {
			return errors.New("schedule extra without schedule payload")
		}
	case KindAnimeLatest, KindMangaLatest:
		if e.Latest == nil {
			return fmt.Errorf("%s extra without latest payload", e.Kind)
		}
	case KindAltTitles:
		if e.AltTitles == nil {
			return errors.New("alt_titles extra without alt_titles payload")
		}
	}
	return nil
}

// Apply writes the payload into its media field. Payloads are copied so
// records never share enrichment state.
func (e Extra) Apply(m *media.Media) {
	if m == nil {
		return
	}
	switch {
	case e.Schedule != nil:
		s := *e.Schedule
		m.Schedule = &s
	case e.Latest != nil:
		l := *e.Latest
		m.Latest = &l
	case e.AltTitles != nil:
		m.AltTitles = append([]string(nil), e.AltTitles.AltTitles...)
	}
}

// episode returns the release number for latest kinds, zero otherwise.
func (e Extra) episode() uint64 {
	if e.Latest == nil {
		return 0
	}
	return e.Latest.Episode
}
