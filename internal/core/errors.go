package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUntrustedProvider is returned when a provider is unknown or not verified.
	ErrUntrustedProvider = errors.New("untrusted provider")

	// ErrFetch is returned when no endpoint yields an artifact.
	ErrFetch = errors.New("artifact fetch failed")

	// ErrIntegrity is returned when an artifact fails validation.
	ErrIntegrity = errors.New("artifact integrity check failed")

	// ErrMaterialization is returned when an entry point cannot be initialized.
	ErrMaterialization = errors.New("materialization failed")

	// ErrInvalidName is returned for provider or package names that are not
	// usable as path segments.
	ErrInvalidName = errors.New("invalid name")
)

// InvalidNameError wraps ErrInvalidName with the offending value.
type InvalidNameError struct {
	Kind string // "provider" or "package"
	Name string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s name %q", e.Kind, e.Name)
}

func (e *InvalidNameError) Unwrap() error {
	return ErrInvalidName
}

// UntrustedProviderError wraps ErrUntrustedProvider.
type UntrustedProviderError struct {
	Provider string
	Reason   string // "unknown" or "unverified"
}

func (e *UntrustedProviderError) Error() string {
	return fmt.Sprintf("provider %s is not trusted (%s)", e.Provider, e.Reason)
}

func (e *UntrustedProviderError) Unwrap() error {
	return ErrUntrustedProvider
}

// Attempt is one endpoint tried while fetching an artifact.
type Attempt struct {
	URL string
	Err error
}

// FetchError reports that every endpoint candidate failed. It unwraps to
// ErrFetch and to each attempt's error.
type FetchError struct {
	Provider string
	Name     string
	Attempts []Attempt
}

func (e *FetchError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("fetch %s/%s: no endpoint candidates", e.Provider, e.Name)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.URL, a.Err))
	}
	return fmt.Sprintf("fetch %s/%s: all %d endpoints failed: %s", e.Provider, e.Name, len(e.Attempts), strings.Join(parts, "; "))
}

func (e *FetchError) Unwrap() []error {
	errs := []error{ErrFetch}
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}

// IntegrityReason identifies which validation step rejected an artifact.
type IntegrityReason string

const (
	ReasonStructure           IntegrityReason = "structure"
	ReasonLicense             IntegrityReason = "license"
	ReasonProviderMismatch    IntegrityReason = "provider_mismatch"
	ReasonNameMismatch        IntegrityReason = "name_mismatch"
	ReasonDigestMismatch      IntegrityReason = "digest_mismatch"
	ReasonSignature           IntegrityReason = "signature"
	ReasonUnsignedSynthesized IntegrityReason = "unsigned_synthesized"
)

// IntegrityError reports a rejected artifact.
type IntegrityError struct {
	Provider string
	Name     string
	Reason   IntegrityReason
	Detail   string
	Err      error
}

func (e *IntegrityError) Error() string {
	msg := fmt.Sprintf("artifact %s/%s rejected: %s", e.Provider, e.Name, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *IntegrityError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrIntegrity, e.Err}
	}
	return []error{ErrIntegrity}
}

// Security reports whether the rejection indicates tampering or impersonation
// rather than a malformed archive.
func (e *IntegrityError) Security() bool {
	switch e.Reason {
	case ReasonStructure, ReasonLicense:
		return false
	default:
		return true
	}
}

// MaterializationError wraps ErrMaterialization.
type MaterializationError struct {
	Provider string
	Name     string
	Err      error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialize %s/%s: %v", e.Provider, e.Name, e.Err)
}

func (e *MaterializationError) Unwrap() []error {
	return []error{ErrMaterialization, e.Err}
}

// ErrorKind classifies resolution errors.
type ErrorKind string

const (
	KindNone            ErrorKind = ""
	KindUntrusted       ErrorKind = "untrusted"
	KindFetch           ErrorKind = "fetch"
	KindIntegrity       ErrorKind = "integrity"
	KindMaterialization ErrorKind = "materialization"
	KindInvalidName     ErrorKind = "invalid_name"
	KindOther           ErrorKind = "other"
)

// Kind classifies err by the first matching error kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrUntrustedProvider):
		return KindUntrusted
	case errors.Is(err, ErrIntegrity):
		return KindIntegrity
	case errors.Is(err, ErrMaterialization):
		return KindMaterialization
	case errors.Is(err, ErrFetch):
		return KindFetch
	case errors.Is(err, ErrInvalidName):
		return KindInvalidName
	default:
		return KindOther
	}
}

// IsSecurityFailure reports whether err should count as a security block.
func IsSecurityFailure(err error) bool {
	if errors.Is(err, ErrUntrustedProvider) {
		return true
	}
	var ie *IntegrityError
	return errors.As(err, &ie) && ie.Security()
}
