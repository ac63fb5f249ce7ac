// Package embed builds the player markup shown next to each post. Markup is
// produced as raw HTML intended for direct injection: the only values
// interpolated without escaping are ids whose character set is restricted by
// the extraction patterns.
package embed

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Platform identifies which player the markup targets.
type Platform string

const (
	PlatformYouTube    Platform = "youtube"
	PlatformSpotify    Platform = "spotify"
	PlatformSoundCloud Platform = "soundcloud"
	// PlatformLink is the plain hyperlink used when no player can be built.
	PlatformLink Platform = "link"
)

// Embed is the synthesized markup for one URL.
type Embed struct {
	Platform Platform
	HTML     string
}

// SpotifyKind is the resource type segment of a Spotify URL or URI.
type SpotifyKind string

const (
	SpotifyTrack    SpotifyKind = "track"
	SpotifyPlaylist SpotifyKind = "playlist"
	SpotifyAlbum    SpotifyKind = "album"
)

// SpotifyRef is a Spotify resource extracted from a URL.
type SpotifyRef struct {
	Kind SpotifyKind
	ID   string
}

var youTubeIDPattern = regexp.MustCompile(`(?im)(?:youtube(?:-nocookie)?\.com/(?:[^/\n\s]+/\S+/|(?:v|e(?:mbed)?)/|\S*?[?&]v=)|youtu\.be/)([a-zA-Z0-9_-]{11})`)

// spotifyKinds is checked in order: a URL naming several kinds resolves to the
// first one listed.
var spotifyKinds = []struct {
	kind SpotifyKind
	path *regexp.Regexp
	uri  *regexp.Regexp
}{
	{SpotifyTrack, regexp.MustCompile(`/track/([a-zA-Z0-9]+)`), regexp.MustCompile(`spotify:track:([a-zA-Z0-9]+)`)},
	{SpotifyPlaylist, regexp.MustCompile(`/playlist/([a-zA-Z0-9]+)`), regexp.MustCompile(`spotify:playlist:([a-zA-Z0-9]+)`)},
	{SpotifyAlbum, regexp.MustCompile(`/album/([a-zA-Z0-9]+)`), regexp.MustCompile(`spotify:album:([a-zA-Z0-9]+)`)},
}

// Synthesize returns player markup for a validated URL. Dispatch is by
// substring in the order YouTube, Spotify, SoundCloud. A URL that matches a
// platform but yields no id falls back to a plain link.
func Synthesize(validURL string) Embed {
	switch {
	case strings.Contains(validURL, "youtube.com") || strings.Contains(validURL, "youtu.be"):
		if id, ok := YouTubeID(validURL); ok {
			return Embed{Platform: PlatformYouTube, HTML: youTubeIframe(id)}
		}
	case strings.Contains(validURL, "spotify.com"):
		if ref, ok := SpotifyResource(validURL); ok {
			return Embed{Platform: PlatformSpotify, HTML: spotifyIframe(ref)}
		}
	case strings.Contains(validURL, "soundcloud.com"):
		return Embed{Platform: PlatformSoundCloud, HTML: soundCloudIframe(validURL)}
	}
	return Fallback(validURL)
}

// YouTubeID extracts the 11-character video id from watch, short, embed and
// legacy /v/ URLs.
func YouTubeID(rawURL string) (string, bool) {
	m := youTubeIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// SpotifyResource extracts the kind and id from an open.spotify.com path or a
// spotify: URI.
func SpotifyResource(rawURL string) (SpotifyRef, bool) {
	for _, k := range spotifyKinds {
		m := k.path.FindStringSubmatch(rawURL)
		if m == nil {
			m = k.uri.FindStringSubmatch(rawURL)
		}
		if m != nil {
			return SpotifyRef{Kind: k.kind, ID: m[1]}, true
		}
	}
	return SpotifyRef{}, false
}

// Fallback renders rawURL as a hyperlink.
func Fallback(rawURL string) Embed {
	escaped := html.EscapeString(rawURL)
	return Embed{
		Platform: PlatformLink,
		HTML:     fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener noreferrer">%s</a>`, escaped, escaped),
	}
}

func youTubeIframe(id string) string {
	return fmt.Sprintf(`<iframe width="100%%" height="360" src="https://www.youtube.com/embed/%s?rel=0&modestbranding=1" allow="accelerometer; autoplay; clipboard-write; encrypted-media; picture-in-picture" allowfullscreen></iframe>`, id)
}

func spotifyIframe(ref SpotifyRef) string {
	return fmt.Sprintf(`<iframe src="https://open.spotify.com/embed/%s/%s" width="100%%" height="360" frameborder="0" allow="encrypted-media"></iframe>`, ref.Kind, ref.ID)
}

func soundCloudIframe(rawURL string) string {
	return fmt.Sprintf(`<iframe width="100%%" height="166" scrolling="no" frameborder="no" src="https://w.soundcloud.com/player/?url=%s"></iframe>`, url.QueryEscape(rawURL))
}
