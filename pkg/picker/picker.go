// Package picker implements cascading expert → screen → element selection
// that fills regions from the catalog.
package picker

import (
	"fmt"

	"github.com/menta2k/region-console/pkg/catalog"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/types"
)

// Selection is the picker's current field values. Empty means unset.
type Selection struct {
	Expert  string `json:"expert"`
	Screen  string `json:"screen"`
	Element string `json:"element"`
}

// Option is one entry of a picker list. Region is the index of the region
// holding the entry, or -1.
type Option struct {
	Value  string `json:"value"`
	Label  string `json:"label"`
	Region int    `json:"region"`
	Color  string `json:"color,omitempty"`
}

// Display renders the option the way the list shows it.
func (o Option) Display() string {
	if o.Region < 0 {
		return o.Label
	}
	return fmt.Sprintf("%s [R%d]", o.Label, o.Region+1)
}

// Picker drives region assignment from the catalog.
type Picker struct {
	catalog *catalog.Catalog
	set     *regions.Set
	sel     Selection
}

// New creates a picker over an immutable catalog and the region set it fills.
func New(c *catalog.Catalog, set *regions.Set) *Picker {
	return &Picker{catalog: c, set: set}
}

// Selection returns the current field values.
func (p *Picker) Selection() Selection { return p.sel }

// SelectExpert sets the expert and clears the dependent fields.
func (p *Picker) SelectExpert(name string) {
	if _, ok := p.catalog.Expert(name); !ok {
		name = ""
	}
	p.sel = Selection{Expert: name}
}

// SelectScreen assigns the screen's box to the active region, or clears the
// region that already holds this screen.
func (p *Picker) SelectScreen(name string) regions.AssignOutcome {
	p.sel.Screen = ""
	p.sel.Element = ""
	box, ok := p.catalog.ScreenBox(p.sel.Expert, name)
	if !ok {
		return regions.AssignOutcome{Index: -1}
	}

	a := types.CatalogAssignment{Kind: types.KindScreen, Expert: p.sel.Expert, Screen: name}
	if held := p.set.FindAssignment(a); held >= 0 {
		p.set.ClearRegion(held)
		return regions.AssignOutcome{ToggledOff: true, Index: held}
	}

	out := p.set.AssignFromCatalog(p.set.Active(), a, box, true)
	if out.Assigned {
		p.sel.Screen = name
	}
	return out
}

// SelectElement assigns the element's desktop box to the active region, or
// clears the region that already holds this element. The screen field is
// used only to scope the element list and may be set without an assignment.
func (p *Picker) SelectElement(label string) regions.AssignOutcome {
	p.sel.Element = ""
	m, ok := p.catalog.Element(p.sel.Expert, p.sel.Screen, label)
	if !ok {
		return regions.AssignOutcome{Index: -1}
	}

	a := types.CatalogAssignment{Kind: types.KindElement, Expert: p.sel.Expert, Screen: p.sel.Screen, Element: label}
	if held := p.set.FindAssignment(a); held >= 0 {
		p.set.ClearRegion(held)
		return regions.AssignOutcome{ToggledOff: true, Index: held}
	}

	out := p.set.AssignFromCatalog(p.set.Active(), a, m.Element.Box, true)
	if out.Assigned {
		p.sel.Element = label
	}
	return out
}

// BrowseScreen sets the screen field without assigning it, so its elements
// can be listed.
func (p *Picker) BrowseScreen(name string) bool {
	if _, ok := p.catalog.Screen(p.sel.Expert, name); !ok {
		return false
	}
	p.sel.Screen = name
	p.sel.Element = ""
	return true
}

// Clear resets all fields. Regions are left as they are.
func (p *Picker) Clear() {
	p.sel = Selection{}
}

// ExpertOptions lists experts, each annotated with the first region
// assigned anything from it.
func (p *Picker) ExpertOptions() []Option {
	experts := p.catalog.Experts()
	out := make([]Option, 0, len(experts))
	for _, e := range experts {
		idx := -1
		for i, r := range p.set.Regions() {
			if r.Assignment != nil && r.Assignment.Expert == e.Name {
				idx = i
				break
			}
		}
		out = append(out, option(e.Name, fmt.Sprintf("%d: %s", e.Label, e.Name), idx))
	}
	return out
}

// ScreenOptions lists the screens of the selected expert.
func (p *Picker) ScreenOptions() []Option {
	screens := p.catalog.Screens(p.sel.Expert)
	out := make([]Option, 0, len(screens))
	for _, s := range screens {
		idx := p.set.FindAssignment(types.CatalogAssignment{Kind: types.KindScreen, Expert: p.sel.Expert, Screen: s.Name})
		out = append(out, option(s.Name, s.Name, idx))
	}
	return out
}

// ElementOptions lists the elements of the selected screen.
func (p *Picker) ElementOptions() []Option {
	elements := p.catalog.Elements(p.sel.Expert, p.sel.Screen)
	out := make([]Option, 0, len(elements))
	for _, el := range elements {
		idx := p.set.FindAssignment(types.CatalogAssignment{
			Kind: types.KindElement, Expert: p.sel.Expert, Screen: p.sel.Screen, Element: el.Label,
		})
		out = append(out, option(el.Label, fmt.Sprintf("%s (%s)", el.Label, el.Type), idx))
	}
	return out
}

func option(value, label string, region int) Option {
	return Option{Value: value, Label: label, Region: region, Color: regions.ColorName(region)}
}
