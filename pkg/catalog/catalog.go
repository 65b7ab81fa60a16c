// Package catalog holds the static expert → screen → element tree of named
// regions with known boxes. A Catalog is built once by the loader and is
// read-only afterwards; all boxes are stored in full-desktop RU coordinates.
package catalog

import (
	"github.com/menta2k/region-console/pkg/types"
)

// ElementType tags what kind of UI control an element is.
type ElementType string

const (
	TypeGrid      ElementType = "grid"
	TypeText      ElementType = "text"
	TypeButton    ElementType = "button"
	TypeDropdown  ElementType = "dropdown"
	TypeTextInput ElementType = "textinput"
	TypeOther     ElementType = "other"
)

func parseElementType(s string) ElementType {
	switch t := ElementType(s); t {
	case TypeGrid, TypeText, TypeButton, TypeDropdown, TypeTextInput:
		return t
	}
	return TypeOther
}

// Element is a groundable UI element of a screen.
type Element struct {
	ID    string      `json:"id"`
	Label string      `json:"label"`
	Type  ElementType `json:"type"`
	// Box is the element's box in full-desktop RU.
	Box types.BoundingBox `json:"box"`
	// Pixels is the rectangle as authored, in the frame named by the file.
	Pixels types.PixelBox `json:"pixels"`
}

// Screen is one screen of an expert.
type Screen struct {
	Name      string            `json:"name"`
	ImageSize types.Size        `json:"image_size"`
	Box       types.BoundingBox `json:"box"`
	Elements  []Element         `json:"elements"`
}

// Expert is a model adapter with the screens it was trained on.
type Expert struct {
	Name        string   `json:"name"`
	Label       int      `json:"label"`
	Description string   `json:"description,omitempty"`
	Screens     []Screen `json:"screens"`
}

// ElementMatch is the result of resolving an element by label.
type ElementMatch struct {
	Element   Element
	ImageSize types.Size
}

// Catalog is the immutable catalog tree.
type Catalog struct {
	desktop types.Size
	experts []Expert
}

// Desktop returns the reference desktop size the catalog was authored against.
func (c *Catalog) Desktop() types.Size {
	return c.desktop
}

// Experts lists all experts in file order.
func (c *Catalog) Experts() []Expert {
	out := make([]Expert, len(c.experts))
	copy(out, c.experts)
	return out
}

// Expert finds an expert by name.
func (c *Catalog) Expert(name string) (Expert, bool) {
	for _, e := range c.experts {
		if e.Name == name {
			return e, true
		}
	}
	return Expert{}, false
}

// ExpertByLabel finds an expert by its numeric routing label.
func (c *Catalog) ExpertByLabel(label int) (Expert, bool) {
	for _, e := range c.experts {
		if e.Label == label {
			return e, true
		}
	}
	return Expert{}, false
}

// Screens lists the screens of an expert, or nil if the expert is unknown.
func (c *Catalog) Screens(expert string) []Screen {
	e, ok := c.Expert(expert)
	if !ok {
		return nil
	}
	return e.Screens
}

// Screen finds a screen of an expert.
func (c *Catalog) Screen(expert, screen string) (Screen, bool) {
	for _, s := range c.Screens(expert) {
		if s.Name == screen {
			return s, true
		}
	}
	return Screen{}, false
}

// Elements lists the elements of a screen, or nil if there is no match.
func (c *Catalog) Elements(expert, screen string) []Element {
	s, ok := c.Screen(expert, screen)
	if !ok {
		return nil
	}
	return s.Elements
}

// Element resolves an element by label along with its screen's image size.
func (c *Catalog) Element(expert, screen, label string) (ElementMatch, bool) {
	s, ok := c.Screen(expert, screen)
	if !ok {
		return ElementMatch{}, false
	}
	for _, el := range s.Elements {
		if el.Label == label {
			return ElementMatch{Element: el, ImageSize: s.ImageSize}, true
		}
	}
	return ElementMatch{}, false
}

// ScreenBox returns a screen's own box in full-desktop RU.
func (c *Catalog) ScreenBox(expert, screen string) (types.BoundingBox, bool) {
	s, ok := c.Screen(expert, screen)
	if !ok {
		return types.BoundingBox{}, false
	}
	return s.Box, true
}

// Resolve returns the desktop RU box for an assignment.
func (c *Catalog) Resolve(a types.CatalogAssignment) (types.BoundingBox, bool) {
	switch a.Kind {
	case types.KindScreen:
		return c.ScreenBox(a.Expert, a.Screen)
	case types.KindElement:
		m, ok := c.Element(a.Expert, a.Screen, a.Element)
		if !ok {
			return types.BoundingBox{}, false
		}
		return m.Element.Box, true
	}
	return types.BoundingBox{}, false
}
