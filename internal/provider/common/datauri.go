package common

import "regexp"

var dataURIPattern = regexp.MustCompile(`^data:image/(\w+);base64,(.+)$`)

// ParseImageDataURI splits "data:image/<subtype>;base64,<data>" into its media
// type and base64 payload.
func ParseImageDataURI(uri string) (mediaType, data string, ok bool) {
	match := dataURIPattern.FindStringSubmatch(uri)
	if match == nil {
		return "", "", false
	}
	return "image/" + match[1], match[2], true
}

// IsDataURI reports whether uri uses the data: scheme.
func IsDataURI(uri string) bool {
	return len(uri) >= 5 && uri[:5] == "data:"
}
