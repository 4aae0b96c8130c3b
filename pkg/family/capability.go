package family

import (
	"sort"
	"strings"
)

// Capability is a named boolean permission. Capabilities are independent:
// editVitals does not imply viewVitals.
type Capability string

const (
	CapViewRecords      Capability = "viewRecords"
	CapEditRecords      Capability = "editRecords"
	CapViewVitals       Capability = "viewVitals"
	CapEditVitals       Capability = "editVitals"
	CapViewMedications  Capability = "viewMedications"
	CapEditMedications  Capability = "editMedications"
	CapViewAppointments Capability = "viewAppointments"
	CapEditAppointments Capability = "editAppointments"
	CapViewDocuments    Capability = "viewDocuments"
	CapUploadDocuments  Capability = "uploadDocuments"
	CapManageFamily     Capability = "manageFamily"
	CapViewBilling      Capability = "viewBilling"
)

var allCapabilities = []Capability{
	CapViewRecords,
	CapEditRecords,
	CapViewVitals,
	CapEditVitals,
	CapViewMedications,
	CapEditMedications,
	CapViewAppointments,
	CapEditAppointments,
	CapViewDocuments,
	CapUploadDocuments,
	CapManageFamily,
	CapViewBilling,
}

// AllCapabilities returns every known capability in declaration order
func AllCapabilities() []Capability {
	caps := make([]Capability, len(allCapabilities))
	copy(caps, allCapabilities)
	return caps
}

// Valid reports whether c is a known capability
func (c Capability) Valid() bool {
	for _, known := range allCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCapability converts a string into a Capability
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.TrimSpace(s))
	if !c.Valid() {
		return "", Errorf(ErrInvalidCapability, "invalid capability: %q", s)
	}
	return c, nil
}

// CapabilitySet maps capabilities to their granted state. A set used as an
// override layer may be partial: a missing key inherits from the layer below.
type CapabilitySet map[Capability]bool

func newCapabilitySet(granted ...Capability) CapabilitySet {
	set := CapabilitySet{}.Complete()
	for _, c := range granted {
		set[c] = true
	}
	return set
}

// Complete returns a copy of s with every known capability present.
// Capabilities missing from s are false.
func (s CapabilitySet) Complete() CapabilitySet {
	out := make(CapabilitySet, len(allCapabilities))
	for _, c := range allCapabilities {
		out[c] = s[c]
	}
	return out
}

// Clone returns a copy of s, preserving partiality. A nil set clones to nil.
func (s CapabilitySet) Clone() CapabilitySet {
	if s == nil {
		return nil
	}
	out := make(CapabilitySet, len(s))
	for c, v := range s {
		out[c] = v
	}
	return out
}

// Overlay returns a copy of s with every entry of layer applied on top
func (s CapabilitySet) Overlay(layer CapabilitySet) CapabilitySet {
	out := s.Clone()
	if out == nil {
		out = CapabilitySet{}
	}
	for c, v := range layer {
		if c.Valid() {
			out[c] = v
		}
	}
	return out
}

// Allows reports whether c is granted. Absent means denied.
func (s CapabilitySet) Allows(c Capability) bool {
	return s[c]
}

// Equal reports whether both sets contain the same entries
func (s CapabilitySet) Equal(other CapabilitySet) bool {
	if len(s) != len(other) {
		return false
	}
	for c, v := range s {
		ov, ok := other[c]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// Validate rejects sets naming unknown capabilities
func (s CapabilitySet) Validate() error {
	var unknown []string
	for c := range s {
		if !c.Valid() {
			unknown = append(unknown, string(c))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Errorf(ErrInvalidCapability, "invalid capability: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// Granted returns the capabilities set to true, in declaration order
func (s CapabilitySet) Granted() []Capability {
	var out []Capability
	for _, c := range allCapabilities {
		if s[c] {
			out = append(out, c)
		}
	}
	return out
}
