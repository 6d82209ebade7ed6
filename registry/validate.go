package registry

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/handylife-debug/webwaka-main-sub008/errors"
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidateManifest checks a manifest before anything is written.
func ValidateManifest(m Manifest) error {
	invalid := func(field, reason string) error {
		return errors.NewValidationError("manifest", field, reason)
	}

	switch {
	case m.ID == "":
		return invalid("id", "required")
	case m.Sector == "":
		return invalid("sector", "required")
	case m.Name == "":
		return invalid("name", "required")
	case m.Version == "":
		return invalid("version", "required")
	case len(m.Actions) == 0:
		return invalid("actions", "at least one action required")
	case len(m.Channels) == 0:
		return invalid("channels", "at least one channel required")
	}

	if !segmentPattern.MatchString(m.Sector) {
		return invalid("sector", "must be alphanumeric with - or _")
	}
	if !segmentPattern.MatchString(m.Name) {
		return invalid("name", "must be alphanumeric with - or _")
	}
	if m.ID != m.Sector+"/"+m.Name {
		return invalid("id", "must equal sector/name")
	}
	if _, err := ParseVersion(m.Version); err != nil {
		return &errors.ValidationError{Subject: "manifest", Field: "version", Reason: "not a semantic version", Err: err}
	}
	if err := uniqueNames("actions", m.Actions); err != nil {
		return err
	}
	return uniqueNames("channels", m.Channels)
}

func uniqueNames(field string, names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return errors.NewValidationError("manifest", field, "empty name")
		}
		if !segmentPattern.MatchString(n) {
			return errors.NewValidationError("manifest", field, "invalid name "+n)
		}
		if _, dup := seen[n]; dup {
			return errors.NewValidationError("manifest", field, "duplicate "+n)
		}
		seen[n] = struct{}{}
	}
	return nil
}

// SplitID splits "sector/name".
func SplitID(id string) (sector, name string, ok bool) {
	sector, name, ok = strings.Cut(id, "/")
	if !ok || !segmentPattern.MatchString(sector) || !segmentPattern.MatchString(name) {
		return "", "", false
	}
	return sector, name, true
}

// validateEndpoint accepts an empty endpoint or an absolute http, https or
// nats URL.
func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return &errors.ValidationError{Subject: "artifacts", Field: "endpoint", Reason: "malformed URL", Err: err}
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return errors.NewValidationError("artifacts", "endpoint", "missing host")
		}
	case "nats":
		if u.Host == "" && u.Path == "" {
			return errors.NewValidationError("artifacts", "endpoint", "missing subject")
		}
	default:
		return errors.NewValidationError("artifacts", "endpoint", "unsupported scheme "+u.Scheme)
	}
	return nil
}
