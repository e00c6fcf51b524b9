// Package linkpreview recognizes links to well-known media providers in chat
// text and describes them without fetching anything over the network.
package linkpreview

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	ProviderYouTube   = "YouTube"
	ProviderInstagram = "Instagram"

	instagramImage = "https://images.unsplash.com/photo-1506905925346-21bda4d32df4?w=400&h=400&fit=crop"
)

// Preview is the enrichment attached to a text message.
type Preview struct {
	URL         string
	Title       string
	Description string
	Image       string
	Provider    string
}

var (
	urlPattern     = regexp.MustCompile(`https?://[^\s]+`)
	watchIDPattern = regexp.MustCompile(`[?&]v=([^&#]+)`)
)

// Resolve returns a preview for the first URL in content, or nil when there is
// no URL or its provider is not recognized. It is pure and safe for
// concurrent use.
func Resolve(content string) *Preview {
	link := FirstURL(content)
	if link == "" {
		return nil
	}

	switch {
	case strings.Contains(link, "youtube.com") || strings.Contains(link, "youtu.be"):
		id := youTubeVideoID(link)
		if id == "" {
			return nil
		}
		return &Preview{
			URL:         link,
			Title:       "YouTube Video",
			Description: "Click to watch on YouTube",
			Image:       "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg",
			Provider:    ProviderYouTube,
		}
	case strings.Contains(link, "instagram.com"):
		return &Preview{
			URL:         link,
			Title:       "Instagram Post",
			Description: "View on Instagram",
			Image:       instagramImage,
			Provider:    ProviderInstagram,
		}
	}
	return nil
}

// FirstURL returns the first well-formed http(s) URL in content.
// Trailing sentence punctuation is not considered part of the link.
func FirstURL(content string) string {
	for _, candidate := range urlPattern.FindAllString(content, -1) {
		candidate = strings.TrimRight(candidate, ".,!?;:)]}'\"")
		u, err := url.Parse(candidate)
		if err != nil || u.Host == "" {
			continue
		}
		return candidate
	}
	return ""
}

func youTubeVideoID(link string) string {
	switch {
	case strings.Contains(link, "youtube.com/watch"):
		if m := watchIDPattern.FindStringSubmatch(link); m != nil {
			return m[1]
		}
	case strings.Contains(link, "youtube.com/shorts/"):
		return pathSegmentAfter(link, "youtube.com/shorts/")
	case strings.Contains(link, "youtu.be/"):
		return pathSegmentAfter(link, "youtu.be/")
	}
	return ""
}

func pathSegmentAfter(link, marker string) string {
	rest := link[strings.Index(link, marker)+len(marker):]
	if i := strings.IndexAny(rest, "?#/&"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
