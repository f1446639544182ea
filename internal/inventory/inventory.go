package inventory

import (
	"maps"
	"strings"
	"time"

	"stockpile/internal/textutil"
)

// Origin names the platform a candidate was detected on.
type Origin string

const (
	OriginRegistry Origin = "registry"
	OriginSteam    Origin = "steam"
	OriginEpic     Origin = "epic"
	OriginGOG      Origin = "gog"
	OriginManual   Origin = "manual"
)

// Kind is the provider-facing class of a category.
type Kind string

const (
	KindGame     Kind = "game"
	KindSoftware Kind = "software"
	// KindNone marks component categories no provider serves.
	KindNone Kind = "none"
)

// Category is "game", "software", a slash sub-category of either, or a
// component category such as "runtime" or "office-component".
type Category string

const (
	CategoryNone            Category = ""
	CategoryGame            Category = "game"
	CategorySoftware        Category = "software"
	CategoryRuntime         Category = "runtime"
	CategoryDriver          Category = "driver"
	CategoryUpdate          Category = "update"
	CategoryOfficeComponent Category = "office-component"
	CategoryLanguagePack    Category = "language-pack"
	CategorySDK             Category = "sdk"
)

// Kind maps the category onto the provider group serving it. The empty
// category is treated as software.
func (c Category) Kind() Kind {
	value := strings.ToLower(strings.TrimSpace(string(c)))
	switch {
	case value == "":
		return KindSoftware
	case value == string(KindGame) || strings.HasPrefix(value, string(KindGame)+"/"):
		return KindGame
	case value == string(KindSoftware) || strings.HasPrefix(value, string(KindSoftware)+"/"):
		return KindSoftware
	default:
		return KindNone
	}
}

// IsEmpty reports whether no category was assigned.
func (c Category) IsEmpty() bool {
	return strings.TrimSpace(string(c)) == ""
}

// Candidate is one raw detection from a single detector pass.
type Candidate struct {
	Name           string
	Origin         Origin
	ExternalID     string
	InstallPath    string
	ExecutablePath string
	IconHint       string
	Version        string
	InstallTime    time.Time
	Category       Category
	Attributes     map[string]string
}

// Key returns the normalized dedupe key for the candidate's name.
func (c Candidate) Key() string {
	return textutil.NormalizeName(c.Name)
}

// Clone returns a copy with its own attribute map.
func (c Candidate) Clone() Candidate {
	c.Attributes = maps.Clone(c.Attributes)
	return c
}

// SetAttr records an attribute, skipping empty values.
func (c *Candidate) SetAttr(key, value string) {
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return
	}
	if c.Attributes == nil {
		c.Attributes = make(map[string]string)
	}
	c.Attributes[key] = value
}

// AbsorbAttributes copies attributes from other under keys c does not define.
func (c *Candidate) AbsorbAttributes(other map[string]string) {
	for key, value := range other {
		if _, ok := c.Attributes[key]; ok {
			continue
		}
		c.SetAttr(key, value)
	}
}

// Attribute keys shared by detectors and providers.
const (
	AttrPublisher = "publisher"
	AttrHomepage  = "homepage"
	AttrSource    = "detected_by"
)

// Detection is a candidate tagged with the detector that produced it.
// Generic marks the OS registry scan, which loses to specialized detectors.
type Detection struct {
	Candidate
	Detector string
	Generic  bool
}
