package media

import (
	"path"
	"strings"
)

const (
	directoryIdentifierMaxLength = 31
	fileIdentifierMaxLength      = 30
)

// dCharacters is the identifier alphabet of the iso9660 writer.
const dCharacters = "abcdefghijklmnopqrstuvwxyz0123456789_!\"%&'()*+,-./:;<=>?"

// GuestPath returns the name a host-relative path receives inside an image
// built by BuildISO, so callers can tell guests where to look.
func GuestPath(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	var segments []string
	for _, s := range strings.Split(rel, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) == 0 {
		return ""
	}
	for i, segment := range segments {
		if i == len(segments)-1 {
			segments[i] = strings.TrimSuffix(mangleFileName(segment), ";1")
			continue
		}
		segments[i] = mangleDString(segment, directoryIdentifierMaxLength)
	}
	return path.Join(segments...)
}

func mangleFileName(input string) string {
	parts := strings.Split(strings.ToLower(input), ".")
	filename := parts[0]
	extension := ""
	if len(parts) > 1 {
		filename = strings.Join(parts[:len(parts)-1], "_")
		extension = parts[len(parts)-1]
	}
	extension = mangleDString(extension, 8)

	maxLen := fileIdentifierMaxLength - 2
	if extension != "" {
		maxLen -= 1 + len(extension)
	}
	filename = mangleDString(filename, maxLen)
	if extension != "" {
		return filename + "." + extension + ";1"
	}
	return filename + ";1"
}

func mangleDString(input string, maxLen int) string {
	input = strings.ToLower(input)
	var b strings.Builder
	for i := 0; i < len(input) && b.Len() < maxLen; i++ {
		if strings.IndexByte(dCharacters, input[i]) >= 0 {
			b.WriteByte(input[i])
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
