package core

import (
	"fmt"
	"strings"

	packageurl "github.com/package-url/packageurl-go"
)

// PURLType is the Package URL type used for provider packages.
const PURLType = "generic"

// PURL wraps packageurl.PackageURL with provider-specific helpers.
type PURL struct {
	packageurl.PackageURL
}

// Ref returns the provider and package name the PURL points at.
// The namespace is the provider.
func (p PURL) Ref() Ref {
	return Ref{Provider: p.Namespace, Name: p.Name}
}

// ParsePURL parses a Package URL string into its components.
func ParsePURL(purl string) (*PURL, error) {
	p, err := packageurl.FromString(purl)
	if err != nil {
		return nil, err
	}
	return &PURL{p}, nil
}

// ModulePURL returns the attribution PURL of a resolved package,
// e.g. pkg:generic/acme/tools@1.0.0.
func ModulePURL(provider, name, version string) string {
	return packageurl.NewPackageURL(PURLType, provider, name, version, nil, "").ToString()
}

// ParseRef accepts "provider/name" or "pkg:generic/provider/name[@version]".
func ParseRef(s string) (Ref, error) {
	if strings.HasPrefix(s, "pkg:") {
		p, err := ParsePURL(s)
		if err != nil {
			return Ref{}, fmt.Errorf("parsing %q: %w", s, err)
		}
		if p.Type != PURLType {
			return Ref{}, fmt.Errorf("unsupported purl type %q in %q", p.Type, s)
		}
		if p.Namespace == "" || strings.Contains(p.Namespace, "/") {
			return Ref{}, fmt.Errorf("purl %q must have exactly one namespace segment naming the provider", s)
		}
		return checkRef(p.Ref())
	}

	provider, name, ok := strings.Cut(s, "/")
	if !ok {
		return Ref{}, fmt.Errorf("reference %q must be provider/name", s)
	}
	return checkRef(Ref{Provider: provider, Name: name})
}

func checkRef(r Ref) (Ref, error) {
	if err := ValidateName("provider", r.Provider); err != nil {
		return Ref{}, err
	}
	if err := ValidateName("package", r.Name); err != nil {
		return Ref{}, err
	}
	return r, nil
}
