package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/region-console/pkg/types"
)

// boxList collects repeated -box flags.
type boxList []types.BoundingBox

func (b *boxList) String() string {
	parts := make([]string, len(*b))
	for i, box := range *b {
		parts[i] = box.String()
	}
	return strings.Join(parts, " ")
}

func (b *boxList) Set(v string) error {
	box, err := parseBox(v)
	if err != nil {
		return err
	}
	*b = append(*b, box)
	return nil
}

// parseBox reads "x1,y1,x2,y2" in RU.
func parseBox(v string) (types.BoundingBox, error) {
	fields := strings.Split(v, ",")
	if len(fields) != 4 {
		return types.BoundingBox{}, fmt.Errorf("box %q: want x1,y1,x2,y2", v)
	}
	var n [4]int
	for i, f := range fields {
		x, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return types.BoundingBox{}, fmt.Errorf("box %q: %w", v, err)
		}
		n[i] = x
	}
	box := types.Box(n[0], n[1], n[2], n[3])
	if !box.Valid() {
		return types.BoundingBox{}, fmt.Errorf("box %q is empty", v)
	}
	return box, nil
}

// pick is one catalog selection: expert/screen or expert/screen/element.
type pick struct {
	Expert  string
	Screen  string
	Element string
}

type pickList []pick

func (p *pickList) String() string {
	parts := make([]string, len(*p))
	for i, pk := range *p {
		parts[i] = strings.TrimSuffix(pk.Expert+"/"+pk.Screen+"/"+pk.Element, "/")
	}
	return strings.Join(parts, " ")
}

func (p *pickList) Set(v string) error {
	fields := strings.Split(v, "/")
	if len(fields) < 2 || len(fields) > 3 {
		return fmt.Errorf("pick %q: want expert/screen[/element]", v)
	}
	pk := pick{Expert: fields[0], Screen: fields[1]}
	if len(fields) == 3 {
		pk.Element = fields[2]
	}
	*p = append(*p, pk)
	return nil
}
