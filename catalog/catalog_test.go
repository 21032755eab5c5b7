package catalog

import (
	"reflect"
	"testing"
)

func TestMergeBadgesLeafOverride(t *testing.T) {
	global := BadgeSet{"A": {"1": "g1"}}
	channel := BadgeSet{"A": {"1": "c1"}, "B": {"2": "c2"}}

	got := MergeBadges(global, channel)

	want := BadgeSet{"A": {"1": "c1"}, "B": {"2": "c2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeBadges() = %v, want %v", got, want)
	}
	// Inputs must not be mutated.
	if global["A"]["1"] != "g1" {
		t.Error("global input was mutated")
	}
}

func TestMergeBadgesKeepsGlobalVersions(t *testing.T) {
	global := BadgeSet{"subscriber": {"0": "g0", "3": "g3"}}
	channel := BadgeSet{"subscriber": {"3": "c3"}}

	got := MergeBadges(global, channel)

	if got["subscriber"]["0"] != "g0" {
		t.Error("global-only version lost during merge")
	}
	if got["subscriber"]["3"] != "c3" {
		t.Error("channel override not applied")
	}
}

func TestMergeEmotes(t *testing.T) {
	got := MergeEmotes(EmoteSet{"Kappa": "g", "HeyGuys": "g2"}, EmoteSet{"Kappa": "c"})
	if got["Kappa"] != "c" || got["HeyGuys"] != "g2" {
		t.Errorf("MergeEmotes() = %v", got)
	}
}

func TestResolveBadgeTag(t *testing.T) {
	c := Combined{Badges: BadgeSet{
		"moderator":  {"1": "mod-url"},
		"subscriber": {"12": "sub-url"},
	}}

	got := c.ResolveBadgeTag("moderator/1,subscriber/12,unknown/9,malformed")

	want := []Badge{
		{Set: "moderator", Version: "1", URL: "mod-url"},
		{Set: "subscriber", Version: "12", URL: "sub-url"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveBadgeTag() = %v, want %v", got, want)
	}

	if got := c.ResolveBadgeTag(""); got != nil {
		t.Errorf("ResolveBadgeTag(\"\") = %v, want nil", got)
	}
}

func TestFragmentText(t *testing.T) {
	c := Combined{Emotes: EmoteSet{"Kappa": "kappa-url"}}

	got := c.FragmentText("hello Kappa world")

	want := []Fragment{
		{Text: "hello"},
		{Text: "Kappa", EmoteURL: "kappa-url"},
		{Text: "world"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("FragmentText() = %v, want %v", got, want)
	}
}

func TestFragmentTextNoPartialMatch(t *testing.T) {
	c := Combined{Emotes: EmoteSet{"Kappa": "kappa-url"}}
	got := c.FragmentText("KappaPride")
	if len(got) != 1 || got[0].EmoteURL != "" {
		t.Errorf("partial token must not match an emote: %v", got)
	}
}
