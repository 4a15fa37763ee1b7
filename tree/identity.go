package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// UDN is a globally unique device identifier in canonical "uuid:<uuid>" form.
type UDN string

func (u UDN) String() string { return string(u) }

func (u UDN) Valid() bool {
	return strings.HasPrefix(string(u), "uuid:") && len(u) > len("uuid:")
}

// VersionMatch controls how ResourceType.Matches compares versions.
type VersionMatch int

const (
	// MatchExact requires the queried and candidate versions to be equal.
	MatchExact VersionMatch = iota
	// MatchAtLeast accepts any candidate version >= the queried version
	// (UDA's rule for M-SEARCH ST matching: a v2 service answers a v1 query).
	MatchAtLeast
	// MatchAny ignores the version entirely (ssdp:all style matching).
	MatchAny
)

// ResourceKind distinguishes device and service resource types.
type ResourceKind string

const (
	KindDevice  ResourceKind = "device"
	KindService ResourceKind = "service"
)

// ResourceType is a UPnP type URN: urn:<domain>:(device|service):<name>:<version>.
type ResourceType struct {
	Domain  string
	Kind    ResourceKind
	Name    string
	Version int
}

// ParseResourceType parses "urn:domain:device:Name:1" or "...:service:Name:1".
func ParseResourceType(s string) (ResourceType, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "urn" {
		return ResourceType{}, fmt.Errorf("malformed resource type %q", s)
	}
	kind := ResourceKind(parts[2])
	if kind != KindDevice && kind != KindService {
		return ResourceType{}, fmt.Errorf("malformed resource type %q: unknown kind %q", s, parts[2])
	}
	v, err := strconv.Atoi(parts[4])
	if err != nil {
		return ResourceType{}, fmt.Errorf("malformed resource type %q: bad version: %w", s, err)
	}
	return ResourceType{Domain: parts[1], Kind: kind, Name: parts[3], Version: v}, nil
}

func (r ResourceType) String() string {
	return fmt.Sprintf("urn:%s:%s:%s:%d", r.Domain, r.Kind, r.Name, r.Version)
}

func (r ResourceType) IsZero() bool { return r.Name == "" }

// Matches reports whether r (a hosted resource) satisfies a query qt under
// the given version-match policy.
func (r ResourceType) Matches(qt ResourceType, match VersionMatch) bool {
	if r.Domain != qt.Domain || r.Kind != qt.Kind || r.Name != qt.Name {
		return false
	}
	switch match {
	case MatchAny:
		return true
	case MatchAtLeast:
		return r.Version >= qt.Version
	default:
		return r.Version == qt.Version
	}
}

// ServiceID is a UPnP service identifier: urn:<domain>:serviceId:<id>.
type ServiceID struct {
	Domain string
	ID     string
}

func ParseServiceID(s string) (ServiceID, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 || parts[0] != "urn" || parts[2] != "serviceId" {
		return ServiceID{}, fmt.Errorf("malformed service id %q", s)
	}
	return ServiceID{Domain: parts[1], ID: parts[3]}, nil
}

func (s ServiceID) String() string {
	return fmt.Sprintf("urn:%s:serviceId:%s", s.Domain, s.ID)
}

// USN is the pair (UDN, resource identifier) rendered per UDA §1.1.
// Resource is empty for a bare device-UDN advertisement, "upnp:rootdevice"
// for the root-device advertisement, or a ResourceType/ServiceID string.
type USN struct {
	UDN      UDN
	Resource string
}

func (u USN) String() string {
	if u.Resource == "" {
		return u.UDN.String()
	}
	return u.UDN.String() + "::" + u.Resource
}
