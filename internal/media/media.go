package media

import (
	"fmt"
	"strings"
)

// Kind distinguishes anime entries from manga entries.
type Kind string

const (
	KindAnime Kind = "ANIME"
	KindManga Kind = "MANGA"
)

// ParseKind accepts the AniList media type names in any case.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(value))) {
	case KindAnime:
		return KindAnime, nil
	case KindManga:
		return KindManga, nil
	default:
		return "", fmt.Errorf("unknown media kind %q", value)
	}
}

// Collection returns the document collection entries of this kind persist into.
func (k Kind) Collection() string {
	return strings.ToLower(string(k))
}

// Status is the list lifecycle tag reported by the list source.
type Status string

const (
	StatusCurrent   Status = "CURRENT"
	StatusPlanning  Status = "PLANNING"
	StatusCompleted Status = "COMPLETED"
	StatusDropped   Status = "DROPPED"
	StatusPaused    Status = "PAUSED"
	StatusRepeating Status = "REPEATING"
)

// Media is one tracked anime or manga list entry. Instances are built fresh on
// every run; MediaID is stable across runs and is the persistence identity.
type Media struct {
	MediaID      int64     `json:"media_id" bson:"media_id"`
	Kind         Kind      `json:"media_type" bson:"media_type"`
	Status       Status    `json:"status" bson:"status"`
	Format       string    `json:"format,omitempty" bson:"format,omitempty"`
	Season       string    `json:"season,omitempty" bson:"season,omitempty"`
	SeasonYear   int       `json:"season_year,omitempty" bson:"season_year,omitempty"`
	Title        string    `json:"title" bson:"title"`
	EnglishTitle string    `json:"english_title,omitempty" bson:"english_title,omitempty"`
	Image        string    `json:"image,omitempty" bson:"image,omitempty"`
	Episodes     int       `json:"episodes,omitempty" bson:"episodes,omitempty"`
	Score        float64   `json:"score,omitempty" bson:"score,omitempty"`
	Progress     int       `json:"progress,omitempty" bson:"progress,omitempty"`
	AltTitles    []string  `json:"alt_titles,omitempty" bson:"alt_titles,omitempty"`
	Schedule     *Schedule `json:"schedule,omitempty" bson:"schedule,omitempty"`
	Latest       *Latest   `json:"latest,omitempty" bson:"latest,omitempty"`
}

// Current reports whether the entry is eligible for enrichment.
func (m *Media) Current() bool {
	return m != nil && m.Status == StatusCurrent
}

// Field names one enrichment slot on a Media record.
type Field string

const (
	FieldAltTitles Field = "alt_titles"
	FieldSchedule  Field = "schedule"
	FieldLatest    Field = "latest"
)

// Has reports whether the enrichment field is already populated.
func (m *Media) Has(field Field) bool {
	switch field {
	case FieldAltTitles:
		return len(m.AltTitles) > 0
	case FieldSchedule:
		return m.Schedule != nil
	case FieldLatest:
		return m.Latest != nil
	default:
		return false
	}
}

// Clone returns a deep copy so enrichment never aliases another record's slices.
func (m Media) Clone() Media {
	out := m
	if m.AltTitles != nil {
		out.AltTitles = append([]string(nil), m.AltTitles...)
	}
	if m.Schedule != nil {
		s := *m.Schedule
		out.Schedule = &s
	}
	if m.Latest != nil {
		l := *m.Latest
		out.Latest = &l
	}
	return out
}

// Schedule is a weekly broadcast slot.
type Schedule struct {
	Title string `json:"title" bson:"title"`
	Day   Day    `json:"day" bson:"day"`
	Time  string `json:"time" bson:"time"`
}

// Latest is the most recent released episode or chapter.
type Latest struct {
	Title   string `json:"title" bson:"title"`
	Episode uint64 `json:"episode" bson:"episode"`
	URL     string `json:"url" bson:"url"`
}

// AltTitlesEntry is a hand-maintained alias list for one media id.
type AltTitlesEntry struct {
	MediaID   int64    `json:"media_id" bson:"media_id"`
	AltTitles []string `json:"alt_titles" bson:"alt_titles"`
}

// User is the list owner.
type User struct {
	ID   int64  `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

// Lists groups a user's entries by kind.
type Lists struct {
	Anime []Media `json:"anime"`
	Manga []Media `json:"manga"`
}

// Len returns the total number of entries.
func (l Lists) Len() int {
	return len(l.Anime) + len(l.Manga)
}
