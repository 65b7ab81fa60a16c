// Package regionconsole is a headless multi-region annotation console for
// vision-language inference backends.
//
// A console session holds one source image and up to eight regions over it.
// Regions are drawn with the box editor or filled from the catalog of
// experts, screens and elements. A run crops every region, sends each crop
// to the inference backend in order, and maps the answers back onto the
// source image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		regionconsole "github.com/menta2k/region-console"
//		"github.com/menta2k/region-console/pkg/orchestrator"
//		"github.com/menta2k/region-console/pkg/router"
//	)
//
//	func main() {
//		backend := router.NewClient(router.Config{
//			Endpoints: router.Endpoints{MoE: "http://localhost:8000/infer"},
//		}, nil)
//
//		console, err := regionconsole.New(regionconsole.Options{Client: backend})
//		if err != nil {
//			log.Fatal(err)
//		}
//		if err := console.LoadImage(context.Background(), "desktop.png"); err != nil {
//			log.Fatal(err)
//		}
//
//		// Region 0 gets the login window from the catalog.
//		console.SelectExpert("login-window")
//		console.SelectScreen("login-window")
//
//		out := console.Run(context.Background(), orchestrator.Params{Prompt: "Click the OK button"})
//		if out.Err != nil {
//			fmt.Println("run error:", out.Err)
//		}
//		for i, a := range console.Annotations() {
//			if a.Point != nil {
//				fmt.Printf("R%d: click at %v\n", i+1, *a.Point)
//			}
//		}
//	}
//
// The package consists of these components:
//
//  1. Coordinates (pkg/coords): pixel and RU conversions, crop mapping
//  2. Catalog (pkg/catalog): experts, screens and elements as desktop boxes
//  3. Regions (pkg/regions): the Region Set with its active index
//  4. Editor (pkg/editor) and Picker (pkg/picker): the two ways to set boxes
//  5. Orchestrator (pkg/orchestrator): crop, infer and store per region
//  6. Overlay (pkg/overlay): renders boxes and answers over the image
package regionconsole

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/region-console/pkg/cache"
	"github.com/menta2k/region-console/pkg/catalog"
	"github.com/menta2k/region-console/pkg/client"
	"github.com/menta2k/region-console/pkg/cropper"
	"github.com/menta2k/region-console/pkg/editor"
	"github.com/menta2k/region-console/pkg/orchestrator"
	"github.com/menta2k/region-console/pkg/overlay"
	"github.com/menta2k/region-console/pkg/picker"
	"github.com/menta2k/region-console/pkg/processing"
	"github.com/menta2k/region-console/pkg/regions"
	"github.com/menta2k/region-console/pkg/types"
)

// Version of the region console
const Version = "1.0.0"

// ErrNoImage is returned when an operation needs a loaded source image.
var ErrNoImage = errors.New("no image loaded")

// Options configures a Console. Client is required.
type Options struct {
	Catalog *catalog.Catalog
	Client  client.InferenceClient
	Crop    cropper.CropConfig
	Cache   cache.Cache
	Logger  *zap.Logger
}

// Console is one annotation session. All methods are safe for concurrent
// use; a run releases the session while requests are in flight.
type Console struct {
	mu sync.Mutex

	processor    *processing.Processor
	catalog      *catalog.Catalog
	set          *regions.Set
	editor       *editor.Editor
	picker       *picker.Picker
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger

	source  *processing.Source
	lastRun *orchestrator.Outcome
}

// New creates a console with an empty Region Set.
func New(opts Options) (*Console, error) {
	if opts.Client == nil {
		return nil, errors.New("inference client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cat := opts.Catalog
	if cat == nil {
		var err error
		if cat, err = catalog.Default(); err != nil {
			return nil, fmt.Errorf("failed to load default catalog: %w", err)
		}
	}
	cropConfig := opts.Crop
	if cropConfig.Format == "" {
		cropConfig = cropper.DefaultConfig()
	}

	c := &Console{
		processor: processing.NewProcessor(),
		catalog:   cat,
		set:       regions.NewSet(),
		logger:    logger,
	}
	c.editor = editor.New(c.set)
	c.picker = picker.New(cat, c.set)

	orchOpts := []orchestrator.Option{orchestrator.WithLocker(&c.mu)}
	if opts.Cache != nil {
		orchOpts = append(orchOpts, orchestrator.WithCache(opts.Cache))
	}
	c.orchestrator = orchestrator.New(opts.Client, cropper.NewWithConfig(cropConfig, logger), logger, orchOpts...)
	return c, nil
}

// Catalog returns the catalog the picker uses.
func (c *Console) Catalog() *catalog.Catalog { return c.catalog }

// LoadImage loads a screenshot from a file path or URL and resets the regions.
func (c *Console) LoadImage(ctx context.Context, source string) error {
	src, err := c.processor.LoadSource(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	c.setSource(src)
	return nil
}

// LoadDataURL loads a screenshot given as a data URL and resets the regions.
func (c *Console) LoadDataURL(dataURL string) error {
	src, err := c.processor.SourceFromDataURL(dataURL)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	c.setSource(src)
	return nil
}

// LoadBytes loads a screenshot from raw file bytes and resets the regions.
func (c *Console) LoadBytes(data []byte) error {
	src, err := c.processor.SourceFromBytes(data)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	c.setSource(src)
	return nil
}

func (c *Console) setSource(src *processing.Source) {
	if src.DecodeErr != nil {
		c.logger.Warn("image not decodable, regions will send the full image", zap.Error(src.DecodeErr))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
	c.set.Reset()
	c.editor.Cancel()
	c.picker.Clear()
	c.lastRun = nil
	c.logger.Info("image loaded",
		zap.Int("width", src.Size.Width),
		zap.Int("height", src.Size.Height),
		zap.String("format", src.Format))
}

// Image describes the loaded image.
func (c *Console) Image() (processing.ImageInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return processing.ImageInfo{}, false
	}
	return c.source.Info(), true
}

// RegionState is a region with its derived presentation.
type RegionState struct {
	regions.Region
	Index      int                      `json:"index"`
	Color      string                   `json:"color"`
	Active     bool                     `json:"active"`
	Annotation *orchestrator.Annotation `json:"annotation,omitempty"`
}

// EditorState is the box editor as the UI needs it.
type EditorState struct {
	State   string             `json:"state"`
	Cursor  string             `json:"cursor"`
	Preview *types.BoundingBox `json:"preview,omitempty"`
}

// Snapshot is a consistent copy of the session.
type Snapshot struct {
	Image     *processing.ImageInfo `json:"image,omitempty"`
	Active    int                   `json:"active"`
	Regions   []RegionState         `json:"regions"`
	Editor    EditorState           `json:"editor"`
	Selection picker.Selection      `json:"selection"`
	LastError string                `json:"last_error,omitempty"`
}

// Snapshot copies the session state.
func (c *Console) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Active:    c.set.Active(),
		Selection: c.picker.Selection(),
		Editor: EditorState{
			State:   c.editor.State().String(),
			Cursor:  c.editor.Cursor(),
			Preview: c.editor.Preview(),
		},
	}
	if c.source != nil {
		info := c.source.Info()
		s.Image = &info
	}
	if c.lastRun != nil {
		s.LastError = c.lastRun.ErrorMessage()
	}
	for i, r := range c.set.Regions() {
		rs := RegionState{Region: r, Index: i, Color: regions.ColorName(i), Active: i == c.set.Active()}
		if r.Response != nil {
			a := orchestrator.Annotate(r)
			rs.Annotation = &a
		}
		s.Regions = append(s.Regions, rs)
	}
	return s
}

// SetActive makes region i the active one.
func (c *Console) SetActive(i int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.Cancel()
	return c.set.SetActive(i)
}

// SetBox sets or removes (nil) the box of region i.
func (c *Console) SetBox(i int, box *types.BoundingBox) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.SetBox(i, box)
}

// AddRegion appends a region and makes it active.
func (c *Console) AddRegion() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.AddRegion()
}

// ClearRegion empties region i.
func (c *Console) ClearRegion(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set.ClearRegion(i)
}

// ClearAll restores the initial regions.
func (c *Console) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.Cancel()
	c.set.ClearAll()
	c.lastRun = nil
}

// SetViewport sets the size of the surface pointer events come from.
func (c *Console) SetViewport(width, height float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.SetViewport(width, height)
}

// PointerDown forwards a pointer press to the box editor.
func (c *Console) PointerDown(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.PointerDown(x, y)
}

// PointerMove forwards a pointer move to the box editor.
func (c *Console) PointerMove(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.PointerMove(x, y)
}

// PointerUp ends the editor interaction and reports whether a drawn box
// was committed.
func (c *Console) PointerUp(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor.PointerUp(x, y)
}

// CancelEdit abandons the editor interaction.
func (c *Console) CancelEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editor.Cancel()
}

// SelectExpert sets the picker's expert.
func (c *Console) SelectExpert(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.picker.SelectExpert(name)
}

// SelectScreen assigns or toggles off a screen.
func (c *Console) SelectScreen(name string) regions.AssignOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.picker.SelectScreen(name)
}

// BrowseScreen scopes the element list without assigning the screen.
func (c *Console) BrowseScreen(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.picker.BrowseScreen(name)
}

// SelectElement assigns or toggles off an element.
func (c *Console) SelectElement(label string) regions.AssignOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.picker.SelectElement(label)
}

// ClearSelection resets the picker fields.
func (c *Console) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.picker.Clear()
}

// PickerOptions are the three picker lists for the current selection.
type PickerOptions struct {
	Experts  []picker.Option `json:"experts"`
	Screens  []picker.Option `json:"screens"`
	Elements []picker.Option `json:"elements"`
}

// Options returns the picker lists.
func (c *Console) Options() PickerOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PickerOptions{
		Experts:  c.picker.ExpertOptions(),
		Screens:  c.picker.ScreenOptions(),
		Elements: c.picker.ElementOptions(),
	}
}

// Run sends every region to the backend. Regions can be edited while it is
// in flight; a result is dropped when its region was edited or cleared, or
// a newer run started, before it arrived.
func (c *Console) Run(ctx context.Context, params orchestrator.Params) orchestrator.Outcome {
	c.mu.Lock()
	src := c.source
	c.mu.Unlock()
	if src == nil {
		return orchestrator.Outcome{Err: ErrNoImage}
	}

	out := c.orchestrator.Run(ctx, src, c.set, params)

	c.mu.Lock()
	if !out.Superseded {
		c.lastRun = &out
	}
	c.mu.Unlock()
	return out
}

// LastRun returns the outcome of the last completed run.
func (c *Console) LastRun() (orchestrator.Outcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRun == nil {
		return orchestrator.Outcome{}, false
	}
	return *c.lastRun, true
}

// Annotations interprets every region's response, indexed by region.
func (c *Console) Annotations() []orchestrator.Annotation {
	c.mu.Lock()
	defer c.mu.Unlock()
	rs := c.set.Regions()
	out := make([]orchestrator.Annotation, len(rs))
	for i, r := range rs {
		out[i] = orchestrator.Annotate(r)
	}
	return out
}

// Render draws the regions and their annotations over the source image.
func (c *Console) Render() (*image.NRGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil || !c.source.Decoded() {
		return nil, ErrNoImage
	}
	return overlay.Render(c.source.Image, viewsOf(c.set.Regions()), c.set.Active()), nil
}

func viewsOf(rs []regions.Region) []overlay.RegionView {
	views := make([]overlay.RegionView, 0, len(rs))
	for i, r := range rs {
		a := orchestrator.Annotate(r)
		views = append(views, overlay.RegionView{
			Index:      i,
			Box:        r.Box,
			Point:      a.Point,
			BBox:       a.BBox,
			Detections: a.Detections,
		})
	}
	return views
}
