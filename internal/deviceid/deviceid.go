// Package deviceid maps an APRS destination address (APxxxx) or MIC-E
// comment prefix/suffix to the station's vendor/model, per the
// tocalls.yaml data distributed at https://github.com/aprsorg/aprs-deviceid.
// Grounded on src/deviceid.go's deviceid_init/deviceid_decode_dest/
// deviceid_decode_mice, rewritten as a loadable Database value rather
// than C-era package-level globals.
package deviceid

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const Unknown = "UNKNOWN vendor/model"

// miceEntry is one MIC-E vendor identification rule: a comment starting
// with Prefix (legacy) or with '`'/'\'' (current) and ending with
// Suffix identifies Vendor/Model.
type miceEntry struct {
	prefix string
	suffix string
	vendor string
	model  string
}

// tocallEntry is one APxxxx destination-address vendor identification
// rule, matched by prefix against the packet's destination call.
type tocallEntry struct {
	tocall string
	vendor string
	model  string
}

// Database holds a loaded tocalls.yaml, sorted for most-specific-match-first
// lookups.
type Database struct {
	mice    []miceEntry
	tocalls []tocallEntry
}

type yamlFile struct {
	Mice []struct {
		Suffix string `yaml:"suffix"`
		Vendor string `yaml:"vendor"`
		Model  string `yaml:"model"`
	} `yaml:"mice"`
	MiceLegacy []struct {
		Prefix string `yaml:"prefix"`
		Suffix string `yaml:"suffix"`
		Vendor string `yaml:"vendor"`
		Model  string `yaml:"model"`
	} `yaml:"micelegacy"`
	Tocalls []struct {
		Tocall string `yaml:"tocall"`
		Vendor string `yaml:"vendor"`
		Model  string `yaml:"model"`
	} `yaml:"tocalls"`
}

// DefaultSearchPaths mirrors src/deviceid.go's search_locations, the
// order client installs of tocalls.yaml are conventionally found in.
var DefaultSearchPaths = []string{
	"tocalls.yaml",
	"data/tocalls.yaml",
	"../data/tocalls.yaml",
	"/usr/local/share/gotnc/tocalls.yaml",
	"/usr/share/gotnc/tocalls.yaml",
	"/opt/local/share/gotnc/tocalls.yaml",
}

// LoadDefault tries each of DefaultSearchPaths in turn, loading the
// first one found.
func LoadDefault() (*Database, error) {
	for _, path := range DefaultSearchPaths {
		db, err := Load(path)
		if err == nil {
			return db, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("deviceid: no tocalls.yaml found in any of %v", DefaultSearchPaths)
}

// Load reads and parses a tocalls.yaml file at path.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("deviceid: reading %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds a Database from raw tocalls.yaml bytes.
func Parse(data []byte) (*Database, error) {
	var doc yamlFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("deviceid: parsing yaml: %w", err)
	}

	db := &Database{}
	for _, e := range doc.Mice {
		db.mice = append(db.mice, miceEntry{suffix: e.Suffix, vendor: e.Vendor, model: e.Model})
	}
	for _, e := range doc.MiceLegacy {
		db.mice = append(db.mice, miceEntry{prefix: e.Prefix, suffix: e.Suffix, vendor: e.Vendor, model: e.Model})
	}
	for _, e := range doc.Tocalls {
		db.tocalls = append(db.tocalls, tocallEntry{
			tocall: strings.TrimRight(e.Tocall, "?*n"),
			vendor: e.Vendor,
			model:  e.Model,
		})
	}

	// Suffixes sorted longest-first so e.g. ">xxx^" is tried before ">xxx".
	slices.SortFunc(db.mice, func(a, b miceEntry) int {
		return cmp.Compare(len(b.suffix), len(a.suffix))
	})

	// Tocalls sorted longest-first, then alphabetically, so the most
	// specific destination prefix (APY350) is tried before a more generic
	// one (APY).
	slices.SortFunc(db.tocalls, func(a, b tocallEntry) int {
		if c := cmp.Compare(len(b.tocall), len(a.tocall)); c != 0 {
			return c
		}
		return strings.Compare(a.tocall, b.tocall)
	})

	return db, nil
}

// DecodeDest finds the vendor/model for a packet's destination address
// (no SSID), e.g. "APDW19" -> "APRSdroid". Grounded on
// deviceid_decode_dest.
func (db *Database) DecodeDest(dest string) string {
	for _, t := range db.tocalls {
		if !strings.HasPrefix(dest, t.tocall) {
			continue
		}
		return formatVendorModel(t.vendor, t.model)
	}
	return Unknown
}

// DecodeMicE finds the vendor/model encoded as a MIC-E comment's
// prefix/suffix, returning the comment with that marker stripped and
// the device string. Grounded on deviceid_decode_mice.
func (db *Database) DecodeMicE(comment string) (string, string) {
	if len(comment) < 1 {
		return comment, Unknown
	}

	for _, m := range db.mice {
		legacy := m.prefix != "" && strings.HasPrefix(comment, m.prefix) && strings.HasSuffix(comment, m.suffix)
		current := m.prefix == "" && (comment[0] == '`' || comment[0] == '\'') && strings.HasSuffix(comment, m.suffix)
		if !legacy && !current {
			continue
		}

		rest := comment[1 : len(comment)-len(m.suffix)]
		return rest, formatVendorModel(m.vendor, m.model)
	}

	return comment, Unknown
}

func formatVendorModel(vendor, model string) string {
	switch {
	case vendor != "" && model != "":
		return vendor + " " + model
	case vendor != "":
		return vendor
	case model != "":
		return model
	default:
		return Unknown
	}
}
