package media

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
)

// HashVersion is mixed into every content hash. Bump it whenever a hashed
// field list below changes so stored hashes are recomputed on the next run.
const HashVersion = 1

// ContentHash digests the fields that define a list entry's content. Bookkeeping
// fields written by the store (modified, hash) are never inputs.
func (m *Media) ContentHash() string {
	h := newHasher("media")
	h.int(m.MediaID)
	h.str(string(m.Kind))
	h.str(string(m.Status))
	h.str(m.Format)
	h.str(m.Season)
	h.int(int64(m.SeasonYear))
	h.str(m.Title)
	h.str(m.EnglishTitle)
	h.str(m.Image)
	h.int(int64(m.Episodes))
	h.float(m.Score)
	h.int(int64(m.Progress))
	h.strs(m.AltTitles)
	if h.present(m.Schedule != nil) {
		h.str(m.Schedule.Title)
		h.str(string(m.Schedule.Day))
		h.str(m.Schedule.Time)
	}
	if h.present(m.Latest != nil) {
		h.str(m.Latest.Title)
		h.uint(m.Latest.Episode)
		h.str(m.Latest.URL)
	}
	return h.sum()
}

// ContentHash digests an alias list entry.
func (e *AltTitlesEntry) ContentHash() string {
	h := newHasher("alt_titles")
	h.int(e.MediaID)
	h.strs(e.AltTitles)
	return h.sum()
}

// ContentHash digests the list owner.
func (u *User) ContentHash() string {
	h := newHasher("user")
	h.int(u.ID)
	h.str(u.Name)
	return h.sum()
}

type hasher struct {
	h hash.Hash
}

func newHasher(kind string) *hasher {
	h := &hasher{h: sha256.New()}
	h.str(kind)
	h.int(HashVersion)
	return h
}

// str writes the value followed by a NUL so adjacent fields cannot run together.
func (h *hasher) str(value string) {
	_, _ = h.h.Write([]byte(value))
	_, _ = h.h.Write([]byte{0})
}

func (h *hasher) int(value int64) {
	h.str(strconv.FormatInt(value, 10))
}

func (h *hasher) uint(value uint64) {
	h.str(strconv.FormatUint(value, 10))
}

func (h *hasher) float(value float64) {
	h.str(strconv.FormatFloat(value, 'g', -1, 64))
}

// strs writes the length first so ["a b"] and ["a", "b"] differ.
func (h *hasher) strs(values []string) {
	h.int(int64(len(values)))
	for _, value := range values {
		h.str(value)
	}
}

func (h *hasher) present(ok bool) bool {
	if ok {
		h.str("1")
	} else {
		h.str("0")
	}
	return ok
}

func (h *hasher) sum() string {
	return hex.EncodeToString(h.h.Sum(nil))
}
