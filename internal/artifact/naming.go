package artifact

import (
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// prefixTimeLayout is an ISO-8601 second timestamp with the colons
// replaced, so it is safe as a path segment.
const prefixTimeLayout = "2006-01-02T15-04-05"

// DefaultExtension is used for result pages.
const DefaultExtension = ".json"

// FilePrefix derives the key prefix for the results of one input file:
// {outputPrefix}{timestamp}/{basename without extension}.
func FilePrefix(outputPrefix, inputURL string, now time.Time) string {
	base := path.Base(urlPath(inputURL))
	if base == "." || base == "/" {
		base = ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	return outputPrefix + now.UTC().Format(prefixTimeLayout) + "/" + base
}

// FileExtension returns the extension of the last path segment of rawURL
// including the dot, or "" if it has none. Query and fragment are ignored.
func FileExtension(rawURL string) string {
	return path.Ext(path.Base(urlPath(rawURL)))
}

// PageKey is the key of the index-th (1-based) artifact under prefix.
func PageKey(prefix string, index int, ext string) string {
	if ext == "" {
		ext = DefaultExtension
	}
	return prefix + "_" + strconv.Itoa(index) + ext
}

// ContentType maps a key's extension to the media type it is served as.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".json":
		return "application/json"
	case ".vtt":
		return "text/vtt"
	case ".srt":
		return "application/x-subrip"
	case ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		if i := strings.IndexAny(rawURL, "?#"); i >= 0 {
			return rawURL[:i]
		}
		return rawURL
	}
	return u.Path
}
