package extras_test

import (
	"testing"

	"oshirase/internal/extras"
	"oshirase/internal/media"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Gintama", "gintama"},
		{"  Kaguya-sama:  Love is War ", "kaguya sama love is war"},
		{"ＧＩＮＴＡＭＡ", "gintama"},
		{"Re:Zero", "re zero"},
		{"Straße", "strasse"},
		{"", ""},
		{" - ", ""},
	}
	for _, tt := range tests {
		if got := extras.NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSetKeepsKeysSortedAndNormalized(t *testing.T) {
	set, err := extras.ScheduleSet([]media.Schedule{
		{Title: "Naruto", Day: media.Monday, Time: "10:00"},
		{Title: "Gintama", Day: media.Saturday, Time: "00:00"},
		{Title: "Bleach", Day: media.Tuesday, Time: "12:00"},
	})
	if err != nil {
		t.Fatalf("ScheduleSet: %v", err)
	}
	keys := set.Keys()
	want := []string{"bleach", "gintama", "naruto"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
	got, ok := set.Lookup("GINTAMA")
	if !ok || got.Schedule.Day != media.Saturday {
		t.Fatalf("Lookup = %+v, %v", got, ok)
	}
}

func TestSetCollisionRules(t *testing.T) {
	latest := extras.NewSet(extras.KindAnimeLatest)
	for _, ep := range []uint64{3, 5, 4} {
		if _, err := latest.Add(extras.FromLatest(extras.KindAnimeLatest, media.Latest{Title: "Frieren", Episode: ep})); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	got, _ := latest.Lookup("frieren")
	if got.Latest.Episode != 5 {
		t.Fatalf("expected highest episode to win, got %d", got.Latest.Episode)
	}

	schedule := extras.NewSet(extras.KindSchedule)
	first := media.Schedule{Title: "Frieren", Day: media.Friday}
	second := media.Schedule{Title: "frieren", Day: media.Sunday}
	if stored, _ := schedule.Add(extras.FromSchedule(first)); !stored {
		t.Fatal("expected first schedule to be stored")
	}
	if stored, _ := schedule.Add(extras.FromSchedule(second)); stored {
		t.Fatal("expected duplicate schedule to be ignored")
	}
	if schedule.Len() != 1 {
		t.Fatalf("expected one entry, got %d", schedule.Len())
	}
}

func TestSetRejectsMismatchedKind(t *testing.T) {
	set := extras.NewSet(extras.KindSchedule)
	if _, err := set.Add(extras.FromLatest(extras.KindAnimeLatest, media.Latest{Title: "x"})); err == nil {
		t.Fatal("expected kind mismatch error")
	}
	bad := extras.Extra{Kind: extras.KindSchedule, Key: "x"}
	if _, err := set.Add(bad); err == nil {
		t.Fatal("expected missing payload error")
	}
}

func TestAltTitlesSetKeyedByID(t *testing.T) {
	set, err := extras.AltTitlesSet([]media.AltTitlesEntry{{MediaID: 918, AltTitles: []string{"Silver Soul"}}})
	if err != nil {
		t.Fatalf("AltTitlesSet: %v", err)
	}
	if set.Keying() != extras.ByID {
		t.Fatalf("expected id keying, got %v", set.Keying())
	}
	e, ok := set.Lookup("918")
	if !ok {
		t.Fatal("expected lookup by id to succeed")
	}
	var m media.Media
	e.Apply(&m)
	if len(m.AltTitles) != 1 || m.AltTitles[0] != "Silver Soul" {
		t.Fatalf("unexpected alt titles %v", m.AltTitles)
	}
	m.AltTitles[0] = "mutated"
	again, _ := set.Lookup("918")
	if again.AltTitles.AltTitles[0] != "Silver Soul" {
		t.Fatal("Apply must not alias the stored payload")
	}
}

func TestKindField(t *testing.T) {
	cases := map[extras.Kind]media.Field{
		extras.KindAltTitles:   media.FieldAltTitles,
		extras.KindSchedule:    media.FieldSchedule,
		extras.KindAnimeLatest: media.FieldLatest,
		extras.KindMangaLatest: media.FieldLatest,
	}
	for kind, want := range cases {
		if got := kind.Field(); got != want {
			t.Errorf("%s.Field() = %s, want %s", kind, got, want)
		}
	}
}
