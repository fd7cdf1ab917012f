package anilist

import (
	"oshirase/internal/media"
)

type userPayload struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type mediaPayload struct {
	ID         int64  `json:"id"`
	Type       string `json:"type"`
	Format     string `json:"format"`
	Season     string `json:"season"`
	SeasonYear int    `json:"seasonYear"`
	Episodes   int    `json:"episodes"`
	Chapters   int    `json:"chapters"`
	Title      struct {
		Romaji  string `json:"romaji"`
		English string `json:"english"`
	} `json:"title"`
	CoverImage struct {
		Large string `json:"large"`
	} `json:"coverImage"`
}

type entryPayload struct {
	Status   string        `json:"status"`
	Score    float64       `json:"score"`
	Progress int           `json:"progress"`
	Media    *mediaPayload `json:"media"`
}

type listPayload struct {
	Name    string         `json:"name"`
	Status  string         `json:"status"`
	Entries []entryPayload `json:"entries"`
}

type collectionPayload struct {
	Lists []listPayload `json:"lists"`
}

// flatten turns the grouped lists into records. Custom lists repeat entries
// that also appear in a status list; the first occurrence of a media id wins.
func (c *collectionPayload) flatten(kind media.Kind) []media.Media {
	if c == nil {
		return nil
	}
	seen := make(map[int64]bool)
	var out []media.Media
	for _, list := range c.Lists {
		for _, entry := range list.Entries {
			if entry.Media == nil || entry.Media.ID == 0 || seen[entry.Media.ID] {
				continue
			}
			seen[entry.Media.ID] = true
			out = append(out, entry.toMedia(kind, list.Status))
		}
	}
	return out
}

func (e entryPayload) toMedia(kind media.Kind, listStatus string) media.Media {
	m := e.Media
	if parsed, err := media.ParseKind(m.Type); err == nil {
		kind = parsed
	}
	status := e.Status
	if status == "" {
		status = listStatus
	}
	count := m.Episodes
	if kind == media.KindManga {
		count = m.Chapters
	}
	return media.Media{
		MediaID:      m.ID,
		Kind:         kind,
		Status:       media.Status(status),
		Format:       m.Format,
		Season:       m.Season,
		SeasonYear:   m.SeasonYear,
		Title:        m.Title.Romaji,
		EnglishTitle: m.Title.English,
		Image:        m.CoverImage.Large,
		Episodes:     count,
		Score:        e.Score,
		Progress:     e.Progress,
	}
}
