package picker

import (
	"testing"

	"github.com/menta2k/region-console/pkg/catalog"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/types"
)

func newPicker(t *testing.T) (*Picker, *regions.Set) {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	set := regions.NewSet()
	return New(c, set), set
}

func TestSelectExpertClearsDependents(t *testing.T) {
	p, _ := newPicker(t)
	p.SelectExpert("claim-window")
	p.SelectScreen("edit-claim")
	p.SelectElement("send-button")

	p.SelectExpert("login-window")
	if sel := p.Selection(); sel != (Selection{Expert: "login-window"}) {
		t.Errorf("Expected screen and element cleared, got %+v", sel)
	}

	p.SelectExpert("unknown")
	if p.Selection().Expert != "" {
		t.Error("unknown expert should leave the field blank")
	}
}

func TestSelectScreenAssignsActive(t *testing.T) {
	p, set := newPicker(t)
	p.SelectExpert("calendar")
	out := p.SelectScreen("calendar")

	if !out.Assigned || out.Index != 0 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	r, _ := set.Region(0)
	want, _ := p.catalog.ScreenBox("calendar", "calendar")
	if r.Box == nil || *r.Box != want {
		t.Errorf("Expected screen box %v, got %v", want, r.Box)
	}
	if r.Assignment.Kind != types.KindScreen {
		t.Errorf("Expected screen assignment, got %s", r.Assignment.Kind)
	}
	if set.Active() != 1 {
		t.Errorf("Expected active region to advance to 1, got %d", set.Active())
	}
	if p.Selection().Screen != "calendar" {
		t.Error("screen field should show the selection")
	}
}

func TestSelectScreenToggleOff(t *testing.T) {
	p, set := newPicker(t)
	p.SelectExpert("calendar")
	p.SelectScreen("calendar")

	out := p.SelectScreen("calendar")
	if !out.ToggledOff || out.Index != 0 {
		t.Fatalf("Expected toggle-off of region 0, got %+v", out)
	}
	if r, _ := set.Region(0); !r.Empty() {
		t.Error("region 0 should be cleared")
	}
	if set.Active() != 0 {
		t.Errorf("cleared region should become active, got %d", set.Active())
	}
	if p.Selection().Screen != "" {
		t.Error("screen field should be blank after toggle-off")
	}
}

func TestSelectElement(t *testing.T) {
	p, set := newPicker(t)
	p.SelectExpert("login-window")
	if !p.BrowseScreen("login-window") {
		t.Fatal("BrowseScreen failed")
	}

	out := p.SelectElement("password")
	if !out.Assigned {
		t.Fatalf("Expected assignment, got %+v", out)
	}
	r, _ := set.Region(0)
	if r.Assignment == nil || r.Assignment.Element != "password" || r.Assignment.Kind != types.KindElement {
		t.Errorf("unexpected assignment %+v", r.Assignment)
	}
	// 966/1920, 375/1080, 1165/1920, 391/1080
	if *r.Box != types.Box(503, 347, 607, 362) {
		t.Errorf("unexpected element box %v", *r.Box)
	}

	p.SelectElement("ok")
	if r1, _ := set.Region(1); r1.Assignment == nil || r1.Assignment.Element != "ok" {
		t.Error("second element should land in region 1")
	}

	out = p.SelectElement("password")
	if !out.ToggledOff || out.Index != 0 {
		t.Errorf("reselecting should toggle off region 0, got %+v", out)
	}
	if set.FindAssignment(types.CatalogAssignment{Kind: types.KindElement, Expert: "login-window", Screen: "login-window", Element: "password"}) != -1 {
		t.Error("password should not be held by any region")
	}
}

func TestSelectElementUnknown(t *testing.T) {
	p, set := newPicker(t)
	p.SelectExpert("login-window")
	out := p.SelectElement("ok")
	if out.Assigned || out.ToggledOff {
		t.Errorf("element without screen should do nothing, got %+v", out)
	}
	if set.Targets()[0].Box != nil {
		t.Error("no region should have a box")
	}
}

func TestOptionsAnnotated(t *testing.T) {
	p, _ := newPicker(t)
	p.SelectExpert("claim-window")
	p.BrowseScreen("edit-claim")
	p.SelectElement("billing-provider")
	p.SelectElement("send-button")

	opts := p.ElementOptions()
	if len(opts) != 4 {
		t.Fatalf("Expected 4 element options, got %d", len(opts))
	}
	byValue := map[string]Option{}
	for _, o := range opts {
		byValue[o.Value] = o
	}
	if o := byValue["billing-provider"]; o.Region != 0 || o.Color != "blue" {
		t.Errorf("billing-provider should be held by region 0, got %+v", o)
	}
	if o := byValue["send-button"]; o.Region != 1 || o.Display() != "send-button (button) [R2]" {
		t.Errorf("unexpected send-button option %+v (%s)", o, o.Display())
	}
	if o := byValue["procedures-grid"]; o.Region != -1 || o.Color != "" {
		t.Errorf("procedures-grid should be unassigned, got %+v", o)
	}

	experts := p.ExpertOptions()
	if len(experts) != 7 {
		t.Fatalf("Expected 7 experts, got %d", len(experts))
	}
	if experts[4].Label != "4: claim-window" || experts[4].Region != 0 {
		t.Errorf("unexpected claim-window option %+v", experts[4])
	}
	if screens := p.ScreenOptions(); len(screens) != 1 || screens[0].Region != -1 {
		t.Errorf("unexpected screen options %+v", screens)
	}
}

func TestClear(t *testing.T) {
	p, set := newPicker(t)
	p.SelectExpert("desktop")
	p.SelectScreen("desktop")
	p.Clear()
	if p.Selection() != (Selection{}) {
		t.Error("Clear should blank all fields")
	}
	if r, _ := set.Region(0); r.Box == nil {
		t.Error("Clear must not touch regions")
	}
}
