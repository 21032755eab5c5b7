// Package catalog holds badge and emote lookup tables for a channel. Tables
// are fetched by the twitchapi package; this package only merges the global
// and channel-specific layers and resolves names to image URLs.
package catalog

import "strings"

// BadgeSet maps set id -> version id -> image URL.
type BadgeSet map[string]map[string]string

// EmoteSet maps emote name -> image URL.
type EmoteSet map[string]string

// Combined is the per-channel view: global tables with channel-specific
// entries layered on top.
type Combined struct {
	Badges BadgeSet
	Emotes EmoteSet
}

// Merge layers channel tables over global tables. Channel entries win on key
// collision at the leaf level. Neither input is mutated.
func Merge(global, channel Combined) Combined {
	return Combined{
		Badges: MergeBadges(global.Badges, channel.Badges),
		Emotes: MergeEmotes(global.Emotes, channel.Emotes),
	}
}

// MergeBadges layers channel badge sets over global ones, merging versions
// within a set so a channel override of one version keeps the global rest.
func MergeBadges(global, channel BadgeSet) BadgeSet {
	out := make(BadgeSet, len(global)+len(channel))
	for set, versions := range global {
		vs := make(map[string]string, len(versions))
		for v, url := range versions {
			vs[v] = url
		}
		out[set] = vs
	}
	for set, versions := range channel {
		vs, ok := out[set]
		if !ok {
			vs = make(map[string]string, len(versions))
			out[set] = vs
		}
		for v, url := range versions {
			vs[v] = url
		}
	}
	return out
}

// MergeEmotes layers channel emotes over global ones.
func MergeEmotes(global, channel EmoteSet) EmoteSet {
	out := make(EmoteSet, len(global)+len(channel))
	for name, url := range global {
		out[name] = url
	}
	for name, url := range channel {
		out[name] = url
	}
	return out
}

// ResolveBadge returns the image URL for a badge set/version pair.
func (c Combined) ResolveBadge(set, version string) (string, bool) {
	versions, ok := c.Badges[set]
	if !ok {
		return "", false
	}
	url, ok := versions[version]
	return url, ok
}

// ResolveEmoteWord returns the image URL for an exact emote name. Matching is
// whole-word only; callers split text on whitespace first.
func (c Combined) ResolveEmoteWord(word string) (string, bool) {
	url, ok := c.Emotes[word]
	return url, ok
}

// Badge is one resolved badge reference from a message's badges tag.
type Badge struct {
	Set     string
	Version string
	URL     string
}

// ResolveBadgeTag resolves a raw badges tag value ("set/version,set/version")
// against the combined tables. Unknown badges are skipped.
func (c Combined) ResolveBadgeTag(tag string) []Badge {
	if tag == "" {
		return nil
	}
	var out []Badge
	for _, ref := range strings.Split(tag, ",") {
		parts := strings.SplitN(ref, "/", 2)
		if len(parts) != 2 {
			continue
		}
		url, ok := c.ResolveBadge(parts[0], parts[1])
		if !ok {
			continue
		}
		out = append(out, Badge{Set: parts[0], Version: parts[1], URL: url})
	}
	return out
}

// Fragment is one whitespace token of a message: either plain text or an
// emote with its image URL.
type Fragment struct {
	Text     string
	EmoteURL string // empty for plain text
}

// FragmentText splits message text on whitespace and tags each token that
// exactly matches a known emote name.
func (c Combined) FragmentText(text string) []Fragment {
	words := strings.Fields(text)
	out := make([]Fragment, 0, len(words))
	for _, w := range words {
		if url, ok := c.ResolveEmoteWord(w); ok {
			out = append(out, Fragment{Text: w, EmoteURL: url})
			continue
		}
		out = append(out, Fragment{Text: w})
	}
	return out
}
