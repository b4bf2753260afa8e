package catalog

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
)

// CloudinaryResolver rewrites Cloudinary public IDs and Cloudinary-hosted URLs into
// transformed delivery URLs. Other absolute URLs and site-relative paths pass through.
type CloudinaryResolver struct {
	cld            *cloudinary.Cloudinary
	transformation string
}

// NewCloudinaryResolver builds a resolver from a cloudinary:// URL.
func NewCloudinaryResolver(cloudinaryURL, transformation string) (*CloudinaryResolver, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: cloudinary: %w", err)
	}
	return &CloudinaryResolver{cld: cld, transformation: strings.TrimSpace(transformation)}, nil
}

// ResolveImage implements ImageResolver.
func (r *CloudinaryResolver) ResolveImage(raw string) string {
	publicID, ok := cloudinaryPublicID(raw)
	if !ok {
		return raw
	}
	img, err := r.cld.Image(publicID)
	if err != nil {
		return raw
	}
	img.Transformation = r.transformation
	out, err := img.String()
	if err != nil || out == "" {
		return raw
	}
	return out
}

// cloudinaryPublicID extracts the public ID from a bare ID or a res.cloudinary.com
// delivery URL ("<cloud>/image/upload/[transforms/][v123/]<id>.<ext>").
// A bare ID carries no scheme, query or file extension; "images/tee.jpg" is a
// relative file path and passes through.
func cloudinaryPublicID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "/") {
		return "", false
	}
	if !strings.Contains(raw, "://") {
		if strings.ContainsAny(raw, ":?#") || path.Ext(raw) != "" {
			return "", false
		}
		return raw, true
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Hostname(), "cloudinary.com") {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	upload := -1
	for i, s := range segments {
		if s == "upload" {
			upload = i
			break
		}
	}
	if upload < 0 || upload == len(segments)-1 {
		return "", false
	}
	rest := segments[upload+1:]
	for len(rest) > 1 && isTransform(rest[0]) {
		rest = rest[1:]
	}
	if len(rest) > 1 && isVersion(rest[0]) {
		rest = rest[1:]
	}
	id := strings.Join(rest, "/")
	return strings.TrimSuffix(id, path.Ext(id)), id != ""
}

func isVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var transformKeys = map[string]struct{}{
	"a": {}, "ar": {}, "b": {}, "c": {}, "dpr": {}, "e": {}, "f": {}, "fl": {}, "g": {},
	"h": {}, "o": {}, "q": {}, "r": {}, "t": {}, "w": {}, "x": {}, "y": {}, "z": {},
}

func isTransform(s string) bool {
	for _, part := range strings.Split(s, ",") {
		key, _, ok := strings.Cut(part, "_")
		if !ok {
			return false
		}
		if _, known := transformKeys[key]; !known {
			return false
		}
	}
	return true
}
