package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ViewID identifies one of the four garment facets that can carry a design.
type ViewID int

const (
	Front ViewID = iota
	Back
	LeftSleeve
	RightSleeve
)

// NumViews is the number of garment views. The set is closed.
const NumViews = 4

// Views lists every ViewID in canonical order. Anything that iterates over
// views (hashing, serialization, previews) uses this order.
var Views = [NumViews]ViewID{Front, Back, LeftSleeve, RightSleeve}

var viewNames = [NumViews]string{"front", "back", "leftSleeve", "rightSleeve"}

func (v ViewID) String() string {
	if !v.Valid() {
		return fmt.Sprintf("ViewID(%d)", int(v))
	}
	return viewNames[v]
}

// Valid reports whether v is one of the four known views.
func (v ViewID) Valid() bool {
	return v >= Front && v <= RightSleeve
}

// IsSleeve reports whether v is a sleeve. It is the only discriminator used
// to pick default placements and placement limits.
func (v ViewID) IsSleeve() bool {
	return v == LeftSleeve || v == RightSleeve
}

// ParseViewID parses a wire name such as "leftSleeve".
func ParseViewID(s string) (ViewID, error) {
	for i, name := range viewNames {
		if name == s {
			return ViewID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown view %q", s)
}

func (v ViewID) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("invalid view %d", int(v))
	}
	return []byte(v.String()), nil
}

func (v *ViewID) UnmarshalText(b []byte) error {
	parsed, err := ParseViewID(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

type (
	// Position is a pixel offset inside a view's canvas.
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}

	// Size is the rendered size of a design. Both dimensions are positive.
	Size struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}

	// ImageRef points at the image of a design instance. A Local ref is a
	// transient handle to freshly ingested bytes; anything else is a durable
	// remote URL. Digest is the content digest of the bytes, when known.
	ImageRef struct {
		URL    string
		Local  bool
		Digest string
	}

	// DesignInstance is the image and placement bound to one view.
	DesignInstance struct {
		Image    ImageRef
		Position Position
		Size     Size
	}

	// Asset is an ingested image waiting to be uploaded.
	Asset struct {
		Data     []byte
		MIMEType string
		Digest   string
	}

	// PendingAssets holds at most one not-yet-uploaded asset per view.
	PendingAssets [NumViews]*Asset

	// Designs holds at most one DesignInstance per view, indexed by ViewID.
	Designs [NumViews]*DesignInstance

	// DesignSet is the unit of save and load: garment colour plus all views.
	DesignSet struct {
		TshirtColor string  `json:"tshirtColor"`
		Designs     Designs `json:"designs"`
	}

	// Record is a DesignSet persisted by a DocumentStore.
	Record struct {
		ID        string    `json:"id"`
		OwnerID   string    `json:"-"`
		Hash      string    `json:"hash"`
		Design    DesignSet `json:"designData"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

// LocalRefScheme prefixes the URL of every transient local reference.
const LocalRefScheme = "local:"

// Valid reports whether both dimensions are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Ratio returns width over height.
func (s Size) Ratio() float64 {
	return s.Width / s.Height
}

// Durable returns an ImageRef for a remote URL.
func Durable(url string) ImageRef {
	return ImageRef{URL: url}
}

type wireInstance struct {
	Image    string   `json:"image"`
	Position Position `json:"position"`
	Size     Size     `json:"size"`
}

func (d DesignInstance) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireInstance{Image: d.Image.URL, Position: d.Position, Size: d.Size})
}

func (d *DesignInstance) UnmarshalJSON(b []byte) error {
	var w wireInstance
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if !w.Size.Valid() {
		return fmt.Errorf("design size must be positive, got %vx%v", w.Size.Width, w.Size.Height)
	}
	*d = DesignInstance{
		Image:    ImageRef{URL: w.Image, Local: strings.HasPrefix(w.Image, LocalRefScheme)},
		Position: w.Position,
		Size:     w.Size,
	}
	return nil
}

type wireDesigns struct {
	Front       *DesignInstance `json:"front"`
	Back        *DesignInstance `json:"back"`
	LeftSleeve  *DesignInstance `json:"leftSleeve"`
	RightSleeve *DesignInstance `json:"rightSleeve"`
}

func (d Designs) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDesigns{
		Front:       d[Front],
		Back:        d[Back],
		LeftSleeve:  d[LeftSleeve],
		RightSleeve: d[RightSleeve],
	})
}

func (d *Designs) UnmarshalJSON(b []byte) error {
	var w wireDesigns
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*d = Designs{w.Front, w.Back, w.LeftSleeve, w.RightSleeve}
	return nil
}

// Clone returns a deep copy of the set.
func (s DesignSet) Clone() DesignSet {
	out := DesignSet{TshirtColor: s.TshirtColor}
	for _, v := range Views {
		if d := s.Designs[v]; d != nil {
			cp := *d
			out.Designs[v] = &cp
		}
	}
	return out
}

// Populated reports whether at least one view carries a design.
func (s DesignSet) Populated() bool {
	for _, d := range s.Designs {
		if d != nil {
			return true
		}
	}
	return false
}

// Preview returns the image URL of the first populated view, if any.
func (s DesignSet) Preview() string {
	for _, v := range Views {
		if d := s.Designs[v]; d != nil && d.Image.URL != "" {
			return d.Image.URL
		}
	}
	return ""
}

// Validate checks the colour and every populated view's size.
func (s DesignSet) Validate() error {
	if _, err := ParseColor(s.TshirtColor); err != nil {
		return err
	}
	for _, v := range Views {
		if d := s.Designs[v]; d != nil && !d.Size.Valid() {
			return fmt.Errorf("view %s: size must be positive", v)
		}
	}
	return nil
}
