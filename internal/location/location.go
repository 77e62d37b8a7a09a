// Package location builds the list of addressable install targets: the
// fixed primary/dual/multi-slot locations and the named data-slot and
// extsd-slot locations discovered on external storage.
package location

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Anik1199/DualBootPatcher/internal/slot"
)

// MultiBootDir is the directory under the external storage root whose
// children mark named install locations.
const MultiBootDir = "MultiBoot"

// InstallLocation is an addressable install target. Two locations with the
// same ID denote the same target.
type InstallLocation struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EnumerationWarning reports that the external storage listing was not
// available. It is not fatal: the accompanying result is empty but valid.
type EnumerationWarning struct {
	Dir string
	Err error
}

func (w *EnumerationWarning) Error() string {
	return fmt.Sprintf("cannot list named install locations in %s: %v", w.Dir, w.Err)
}

func (w *EnumerationWarning) Unwrap() error {
	return w.Err
}

// IsEnumerationWarning reports whether err is (or wraps) an EnumerationWarning.
func IsEnumerationWarning(err error) bool {
	var w *EnumerationWarning
	return errors.As(err, &w)
}

// Catalog enumerates install locations. The fixed list is computed once at
// construction; named locations are listed from disk on every call.
type Catalog struct {
	strings     *Strings
	storageRoot string
	fixed       []InstallLocation
	logger      *slog.Logger
}

// NewCatalog creates a catalog that reads named locations from
// <storageRoot>/MultiBoot.
func NewCatalog(strings *Strings, storageRoot string, logger *slog.Logger) *Catalog {
	c := &Catalog{
		strings:     strings,
		storageRoot: storageRoot,
		logger:      logger.With(slog.String("component", "location")),
	}
	c.fixed = c.buildFixed()
	return c
}

func (c *Catalog) buildFixed() []InstallLocation {
	locations := []InstallLocation{
		{
			ID:          slot.Primary,
			Name:        c.strings.get(keyPrimaryName),
			Description: c.strings.get(keyPrimaryDesc),
		},
		{
			ID:          slot.Dual,
			Name:        c.strings.get(keySecondary),
			Description: c.strings.get(keyInstallLocDesc, "/system/multiboot/dual"),
		},
	}

	for i := 1; i <= slot.MultiSlotCount; i++ {
		id := slot.MultiSlotID(i)
		locations = append(locations, InstallLocation{
			ID:          id,
			Name:        c.strings.get(keyMultiSlot, i),
			Description: c.strings.get(keyInstallLocDesc, "/cache/multiboot/"+id),
		})
	}

	return locations
}

// Fixed returns primary, dual and multi-slot-1..3, in that order.
func (c *Catalog) Fixed() []InstallLocation {
	out := make([]InstallLocation, len(c.fixed))
	copy(out, c.fixed)
	return out
}

// Named lists the data-slot and extsd-slot directories under
// <storageRoot>/MultiBoot. Order follows the directory listing and must not
// be relied on. If the directory cannot be listed the result is empty and
// the error is an *EnumerationWarning.
func (c *Catalog) Named() ([]InstallLocation, error) {
	dir := filepath.Join(c.storageRoot, MultiBootDir)
	c.logger.Debug("looking for named install locations", slog.String("dir", dir))

	entries, err := readDirUnsorted(dir)
	if err != nil {
		c.logger.Warn("failed to list named install locations",
			slog.String("dir", dir),
			slog.String("error", err.Error()),
		)
		return []InstallLocation{}, &EnumerationWarning{Dir: dir, Err: err}
	}

	locations := make([]InstallLocation, 0, len(entries))
	for _, name := range entries {
		kind, suffix, ok := slot.ParseDynamic(name)
		if !ok {
			continue
		}

		var loc InstallLocation
		switch kind {
		case slot.KindDataSlot:
			loc = c.DataSlotLocation(suffix)
		case slot.KindExtsdSlot:
			loc = c.ExtsdSlotLocation(suffix)
		}

		c.logger.Debug("found named install location",
			slog.String("kind", kind.String()),
			slog.String("suffix", suffix),
		)
		locations = append(locations, loc)
	}

	return locations, nil
}

// All returns the fixed locations followed by the named ones. A listing
// failure is passed through as an *EnumerationWarning alongside the fixed
// locations.
func (c *Catalog) All() ([]InstallLocation, error) {
	named, err := c.Named()
	return append(c.Fixed(), named...), err
}

// DataSlotLocation builds the location for data-slot suffix.
func (c *Catalog) DataSlotLocation(suffix string) InstallLocation {
	return InstallLocation{
		ID:          slot.MakeID(slot.KindDataSlot, suffix),
		Name:        c.strings.get(keyDataSlot, suffix),
		Description: c.strings.get(keyInstallLocDesc, "/data/multiboot/"+slot.DataSlotPrefix+suffix),
	}
}

// ExtsdSlotLocation builds the location for extsd-slot suffix.
func (c *Catalog) ExtsdSlotLocation(suffix string) InstallLocation {
	return InstallLocation{
		ID:          slot.MakeID(slot.KindExtsdSlot, suffix),
		Name:        c.strings.get(keyExtsdSlot, suffix),
		Description: c.strings.get(keyInstallLocDesc, "[External SD]/multiboot/"+slot.ExtsdSlotPrefix+suffix),
	}
}

// readDirUnsorted returns the entry names of dir in the order the
// filesystem reports them. os.ReadDir would sort them.
func readDirUnsorted(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}
