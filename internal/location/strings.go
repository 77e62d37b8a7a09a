package location

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys for install-location display strings.
const (
	keyPrimaryName      = "install_location_primary_upgrade"
	keyPrimaryDesc      = "install_location_primary_upgrade_desc"
	keySecondary        = "secondary"
	keyInstallLocDesc   = "install_location_desc"
	keyMultiSlot        = "multislot"
	keyDataSlot         = "dataslot"
	keyExtsdSlot        = "extsdslot"
	defaultLocaleString = "en"
)

var translations = map[language.Tag]map[string]string{
	language.English: {
		keyPrimaryName:    "Primary ROM Upgrade",
		keyPrimaryDesc:    "Update primary ROM without affecting other ROMs",
		keySecondary:      "Secondary",
		keyInstallLocDesc: "Installed to %s",
		keyMultiSlot:      "Multi-slot %d",
		keyDataSlot:       "Data-slot \"%s\"",
		keyExtsdSlot:      "Extsd-slot \"%s\"",
	},
	language.German: {
		keyPrimaryName:    "Primäres ROM aktualisieren",
		keyPrimaryDesc:    "Primäres ROM aktualisieren, ohne andere ROMs zu verändern",
		keySecondary:      "Sekundär",
		keyInstallLocDesc: "Installiert nach %s",
		keyMultiSlot:      "Multi-Slot %d",
		keyDataSlot:       "Data-Slot \"%s\"",
		keyExtsdSlot:      "Extsd-Slot \"%s\"",
	},
}

// Strings is the localized string table used to label install locations.
type Strings struct {
	printer *message.Printer
	tag     language.Tag
}

// NewStrings builds the string table for locale (a BCP 47 tag such as "en"
// or "de-DE"). Unknown locales fall back to English; an empty locale means
// English.
func NewStrings(locale string) (*Strings, error) {
	if locale == "" {
		locale = defaultLocaleString
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("parse locale %q: %w", locale, err)
	}

	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for lang, table := range translations {
		for key, msg := range table {
			if err := b.SetString(lang, key, msg); err != nil {
				return nil, fmt.Errorf("register %s message %q: %w", lang, key, err)
			}
		}
	}

	supported := b.Languages()
	matched := language.English
	if _, idx, conf := language.NewMatcher(supported).Match(tag); conf != language.No {
		matched = supported[idx]
	}

	return &Strings{
		printer: message.NewPrinter(matched, message.Catalog(b)),
		tag:     matched,
	}, nil
}

// Language returns the language the table resolved to.
func (s *Strings) Language() language.Tag {
	return s.tag
}

func (s *Strings) get(key string, args ...any) string {
	return s.printer.Sprintf(key, args...)
}
