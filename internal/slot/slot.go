// Package slot encodes and decodes install-location identifiers.
//
// A slot id is either one of the fixed names ("primary", "dual",
// "multi-slot-N") or a dynamic slot formed by a namespace prefix followed by
// a user-chosen suffix ("data-slot-foo", "extsd-slot-bar"). The package does
// no I/O.
package slot

import (
	"fmt"
	"strings"
)

// Kind identifies the namespace of a slot id.
type Kind int

const (
	// KindFixed is a literal, built-in location name.
	KindFixed Kind = iota
	// KindDataSlot lives under /data/multiboot on the device.
	KindDataSlot
	// KindExtsdSlot lives on the external SD card.
	KindExtsdSlot
)

// Namespace prefixes for dynamic slots.
const (
	DataSlotPrefix  = "data-slot-"
	ExtsdSlotPrefix = "extsd-slot-"
)

// Fixed location ids.
const (
	Primary = "primary"
	Dual    = "dual"
)

// MultiSlotCount is the number of numbered multi-slot locations.
const MultiSlotCount = 3

// String returns the kind name used in logs and CLI output.
func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindDataSlot:
		return "data-slot"
	case KindExtsdSlot:
		return "extsd-slot"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Prefix returns the id prefix for a dynamic kind, or "" for KindFixed.
func (k Kind) Prefix() string {
	switch k {
	case KindDataSlot:
		return DataSlotPrefix
	case KindExtsdSlot:
		return ExtsdSlotPrefix
	default:
		return ""
	}
}

// MultiSlotID returns the id of the n-th multi-slot location ("multi-slot-2").
func MultiSlotID(n int) string {
	return fmt.Sprintf("multi-slot-%d", n)
}

// FixedIDs returns the fixed location ids in catalog order.
func FixedIDs() []string {
	ids := []string{Primary, Dual}
	for i := 1; i <= MultiSlotCount; i++ {
		ids = append(ids, MultiSlotID(i))
	}
	return ids
}

// IsFixed reports whether id is one of the fixed location ids.
func IsFixed(id string) bool {
	for _, fixed := range FixedIDs() {
		if id == fixed {
			return true
		}
	}
	return false
}

// MakeID joins the kind's prefix and suffix. The suffix is not validated:
// any string is accepted, including one that makes the result equal to a
// fixed id. For KindFixed the suffix is returned unchanged.
func MakeID(kind Kind, suffix string) string {
	return kind.Prefix() + suffix
}

// Classify returns the namespace of id by prefix match alone. The data-slot
// prefix is checked first. Whether anything follows the prefix is not
// inspected, so "data-slot-" classifies as KindDataSlot.
func Classify(id string) Kind {
	switch {
	case strings.HasPrefix(id, DataSlotPrefix):
		return KindDataSlot
	case strings.HasPrefix(id, ExtsdSlotPrefix):
		return KindExtsdSlot
	default:
		return KindFixed
	}
}

// ExtractSuffix returns the remainder of id after kind's prefix. It reports
// false when id does not start with that prefix, or when kind is KindFixed.
func ExtractSuffix(id string, kind Kind) (string, bool) {
	prefix := kind.Prefix()
	if prefix == "" || !strings.HasPrefix(id, prefix) {
		return "", false
	}
	return id[len(prefix):], true
}

// ParseDynamic classifies a directory name as a dynamic slot. Unlike
// Classify it also requires a non-empty suffix, so a directory literally
// named "data-slot-" is rejected.
func ParseDynamic(name string) (Kind, string, bool) {
	kind := Classify(name)
	if kind == KindFixed {
		return KindFixed, "", false
	}
	suffix, ok := ExtractSuffix(name, kind)
	if !ok || suffix == "" {
		return KindFixed, "", false
	}
	return kind, suffix, true
}
