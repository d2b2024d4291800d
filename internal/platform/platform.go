// Package platform maps source URLs to the hosting platform they belong to.
package platform

import (
	"fmt"
	"net/url"
	"strings"
)

type Tag string

const (
	YouTube     Tag = "youtube"
	TikTok      Tag = "tiktok"
	Instagram   Tag = "instagram"
	Twitter     Tag = "twitter"
	Facebook    Tag = "facebook"
	VK          Tag = "vk"
	Rutube      Tag = "rutube"
	OK          Tag = "ok"
	Twitch      Tag = "twitch"
	Dailymotion Tag = "dailymotion"
	Other       Tag = "other"
)

// Checked in order; first match wins.
var patterns = []struct {
	tag     Tag
	needles []string
}{
	{YouTube, []string{"youtube.com", "youtu.be"}},
	{TikTok, []string{"tiktok.com", "vm.tiktok.com", "vt.tiktok.com"}},
	{Instagram, []string{"instagram.com"}},
	{Twitter, []string{"twitter.com", "x.com"}},
	{Facebook, []string{"facebook.com", "fb.com", "fb.watch"}},
	{VK, []string{"vk.com"}},
	{Rutube, []string{"rutube.ru"}},
	{OK, []string{"ok.ru"}},
	{Twitch, []string{"twitch.tv"}},
	{Dailymotion, []string{"dailymotion.com"}},
}

// Classify returns the platform for rawURL. It never fails; unknown hosts are Other.
func Classify(rawURL string) Tag {
	u := strings.ToLower(rawURL)
	for _, p := range patterns {
		for _, n := range p.needles {
			if strings.Contains(u, n) {
				return p.tag
			}
		}
	}
	return Other
}

// Limited reports platforms whose format catalogs lack reliable height/size filters.
func (t Tag) Limited() bool {
	switch t {
	case TikTok, Instagram, Twitter:
		return true
	default:
		return false
	}
}

// SimpleFallback reports platforms that get a last-resort unstructured fetch.
func (t Tag) SimpleFallback() bool {
	return t == TikTok || t == Instagram
}

func (t Tag) String() string { return string(t) }

// ValidateURL checks that raw is a well-formed http(s) URL with a host and returns it trimmed.
// It does not check reachability.
func ValidateURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("url is required")
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if Host(s) == "" {
		return "", fmt.Errorf("url has no host")
	}
	return s, nil
}

// Host returns the lower-cased hostname of rawURL without port or "www.", or "" if unparseable.
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	h := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	return strings.TrimPrefix(h, "www.")
}
