package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Domain is a validated site to crawl.
type Domain struct {
	// Host is the network location (host[:port]) and doubles as the map key.
	Host string
	// BaseURL is scheme://host with no trailing slash.
	BaseURL string
}

// Resolve joins ref against the domain root.
func (d Domain) Resolve(ref string) string {
	return d.BaseURL + "/" + strings.TrimLeft(ref, "/")
}

// DomainInput is one upstream item: either a bare domain string or an
// object with a domain and the time it was discovered.
type DomainInput struct {
	Domain    string `json:"domain"`
	Timestamp string `json:"timestamp,omitempty"`
}

// UnmarshalJSON accepts a JSON string or a {domain, timestamp} object. Any
// other shape decodes to an empty input, which later fails normalization.
func (in *DomainInput) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return fmt.Errorf("decode domain string: %w", err)
		}
		*in = DomainInput{Domain: s}
	case '{':
		type alias DomainInput
		var a alias
		if err := json.Unmarshal(trimmed, &a); err != nil {
			return fmt.Errorf("decode domain object: %w", err)
		}
		*in = DomainInput(a)
	default:
		*in = DomainInput{}
	}
	return nil
}

// LoadDomainInputs decodes a JSON array of domain inputs.
func LoadDomainInputs(r io.Reader) ([]DomainInput, error) {
	var inputs []DomainInput
	if err := json.NewDecoder(r).Decode(&inputs); err != nil {
		return nil, fmt.Errorf("decode domain inputs: %w", err)
	}
	return inputs, nil
}

// DomainInputsFromStrings wraps bare domain strings.
func DomainInputsFromStrings(domains []string) []DomainInput {
	out := make([]DomainInput, 0, len(domains))
	for _, d := range domains {
		out = append(out, DomainInput{Domain: d})
	}
	return out
}

// NormalizeDomain validates raw and returns its Domain. Inputs without a
// scheme are treated as https.
func NormalizeDomain(raw string) (Domain, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Domain{}, fmt.Errorf("%w: empty", ErrInvalidDomain)
	}
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = "https://" + candidate
	}
	u, err := url.Parse(candidate)
	if err != nil {
		return Domain{}, fmt.Errorf("%w: %q: %v", ErrInvalidDomain, raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return Domain{}, fmt.Errorf("%w: %q: unsupported scheme %q", ErrInvalidDomain, raw, u.Scheme)
	}
	if u.Host == "" {
		return Domain{}, fmt.Errorf("%w: %q: missing host", ErrInvalidDomain, raw)
	}
	host := strings.ToLower(u.Host)
	return Domain{Host: host, BaseURL: scheme + "://" + host}, nil
}
