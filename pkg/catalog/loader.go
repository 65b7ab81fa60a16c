package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/region-console/pkg/coords"
	"github.com/menta2k/region-console/pkg/types"
)

// ErrInvalidCatalog is returned for catalogs that fail load-time validation.
var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed default_catalog.yaml
var defaultCatalog []byte

// Frames an element rectangle may be authored in.
const (
	FrameDesktop = "desktop"
	FrameScreen  = "screen"
)

var defaultDesktop = types.Size{Width: 1920, Height: 1080}

type fileCatalog struct {
	Desktop types.Size   `yaml:"desktop"`
	Experts []fileExpert `yaml:"experts"`
}

type fileExpert struct {
	Name        string       `yaml:"name"`
	Label       int          `yaml:"label"`
	Description string       `yaml:"description"`
	Screens     []fileScreen `yaml:"screens"`
}

type fileScreen struct {
	Name      string          `yaml:"name"`
	ImageSize types.Size      `yaml:"image_size"`
	Box       *types.PixelBox `yaml:"box"`
	BoxRU     []int           `yaml:"box_ru"`
	Elements  []fileElement   `yaml:"elements"`
}

type fileElement struct {
	ID    string         `yaml:"id"`
	Label string         `yaml:"label"`
	Type  string         `yaml:"type"`
	Box   types.PixelBox `yaml:"box"`
	Frame string         `yaml:"frame"`
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads and validates a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes a YAML catalog and normalizes every screen and element box
// to full-desktop RU.
func Parse(data []byte) (*Catalog, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	desktop := doc.Desktop
	if desktop == (types.Size{}) {
		desktop = defaultDesktop
	}
	if desktop.Empty() {
		return nil, fmt.Errorf("%w: desktop size must be positive, got %dx%d", ErrInvalidCatalog, desktop.Width, desktop.Height)
	}

	c := &Catalog{desktop: desktop, experts: make([]Expert, 0, len(doc.Experts))}
	names := make(map[string]bool)
	labels := make(map[int]string)

	for _, fe := range doc.Experts {
		if fe.Name == "" {
			return nil, fmt.Errorf("%w: expert without name", ErrInvalidCatalog)
		}
		if names[fe.Name] {
			return nil, fmt.Errorf("%w: duplicate expert %q", ErrInvalidCatalog, fe.Name)
		}
		if other, dup := labels[fe.Label]; dup {
			return nil, fmt.Errorf("%w: experts %q and %q share label %d", ErrInvalidCatalog, other, fe.Name, fe.Label)
		}
		names[fe.Name] = true
		labels[fe.Label] = fe.Name

		expert := Expert{Name: fe.Name, Label: fe.Label, Description: fe.Description}
		screens := make(map[string]bool)
		for _, fs := range fe.Screens {
			if fs.Name == "" {
				return nil, fmt.Errorf("%w: expert %q has a screen without name", ErrInvalidCatalog, fe.Name)
			}
			if screens[fs.Name] {
				return nil, fmt.Errorf("%w: duplicate screen %q in expert %q", ErrInvalidCatalog, fs.Name, fe.Name)
			}
			screens[fs.Name] = true

			screen, err := buildScreen(fs, desktop)
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidCatalog, fe.Name, fs.Name, err)
			}
			expert.Screens = append(expert.Screens, screen)
		}
		c.experts = append(c.experts, expert)
	}
	return c, nil
}

func buildScreen(fs fileScreen, desktop types.Size) (Screen, error) {
	s := Screen{Name: fs.Name, ImageSize: fs.ImageSize}
	if s.ImageSize == (types.Size{}) {
		s.ImageSize = desktop
	}
	if s.ImageSize.Empty() {
		return s, fmt.Errorf("image size must be positive")
	}

	switch {
	case fs.Box != nil && fs.BoxRU != nil:
		return s, fmt.Errorf("box and box_ru are mutually exclusive")
	case fs.Box != nil:
		s.Box = coords.PixelBoxToNormalized(*fs.Box, desktop.Width, desktop.Height)
	case fs.BoxRU != nil:
		if len(fs.BoxRU) != 4 {
			return s, fmt.Errorf("box_ru needs 4 values, got %d", len(fs.BoxRU))
		}
		s.Box = types.Box(fs.BoxRU[0], fs.BoxRU[1], fs.BoxRU[2], fs.BoxRU[3])
	default:
		return s, fmt.Errorf("screen box missing")
	}
	if err := checkBox(s.Box); err != nil {
		return s, fmt.Errorf("screen box: %v", err)
	}

	seen := make(map[string]bool)
	for _, fel := range fs.Elements {
		if fel.Label == "" {
			return s, fmt.Errorf("element %q without label", fel.ID)
		}
		if seen[fel.Label] {
			return s, fmt.Errorf("duplicate element %q", fel.Label)
		}
		seen[fel.Label] = true

		el := Element{ID: fel.ID, Label: fel.Label, Type: parseElementType(fel.Type), Pixels: fel.Box}
		switch fel.Frame {
		case "", FrameDesktop:
			el.Box = coords.PixelBoxToNormalized(fel.Box, desktop.Width, desktop.Height)
		case FrameScreen:
			el.Box = coords.ComposeChildIntoParent(fel.Box.Corners(), s.ImageSize, s.Box)
		default:
			return s, fmt.Errorf("element %q: unknown frame %q", fel.Label, fel.Frame)
		}
		if err := checkBox(el.Box); err != nil {
			return s, fmt.Errorf("element %q: %v", fel.Label, err)
		}
		s.Elements = append(s.Elements, el)
	}
	return s, nil
}

func checkBox(b types.BoundingBox) error {
	if !b.Valid() {
		return fmt.Errorf("degenerate box %v", b)
	}
	if b.X1 < 0 || b.Y1 < 0 || b.X2 > types.Scale || b.Y2 > types.Scale {
		return fmt.Errorf("box %v outside [0,%d]", b, types.Scale)
	}
	return nil
}
