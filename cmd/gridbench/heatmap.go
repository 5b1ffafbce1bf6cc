package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/gogpu/hashgrid"
	"github.com/gogpu/hashgrid/gpucore"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Occupancy counts elements per (x, y) cell column of one frame.
type Occupancy struct {
	Width, Height int
	Counts        []int
	Max           int

	// Occupied is the number of non-empty cells in the cell-start table.
	Occupied int
}

// Snapshot is a host copy of the buffers a heatmap is built from.
type Snapshot struct {
	Data      []uint32
	Bounds    []uint32
	Pairs     []uint32
	CellStart []uint32
}

// ReadSnapshot copies the published buffers of h back to the host.
func ReadSnapshot(dev gpucore.Device, h hashgrid.Handles) (Snapshot, error) {
	s := Snapshot{
		Data:      make([]uint32, h.MaxElementCount*h.Encoding.RecordWords()),
		Bounds:    make([]uint32, gpucore.BoundsWords),
		Pairs:     make([]uint32, 2*h.MaxElementCount),
		CellStart: make([]uint32, h.MaxCellCount),
	}
	reads := []struct {
		id  gpucore.BufferID
		dst []uint32
	}{
		{h.Data, s.Data},
		{h.Bounds, s.Bounds},
		{h.CellInstances, s.Pairs},
		{h.CellStart, s.CellStart},
	}
	for _, r := range reads {
		if err := dev.ReadBuffer(r.id, 0, r.dst); err != nil {
			return s, fmt.Errorf("reading buffer %d: %w", r.id, err)
		}
	}
	return s, nil
}

// ComputeOccupancy projects the pairs of a snapshot onto the XY plane.
// Pairs with an out-of-range cell id are skipped.
func ComputeOccupancy(s Snapshot, h hashgrid.Handles) Occupancy {
	b := hashgrid.DecodeBounds(s.Bounds)
	if b.Empty() {
		return Occupancy{Width: 1, Height: 1, Counts: make([]int, 1)}
	}
	dims := b.Dims(h.CellSize)
	occ := Occupancy{Width: int(dims[0]), Height: int(dims[1])}
	occ.Counts = make([]int, occ.Width*occ.Height)

	rw := h.Encoding.RecordWords()
	for k := range h.MaxElementCount {
		if s.Pairs[2*k] >= h.MaxCellCount {
			continue
		}
		e := s.Pairs[2*k+1]
		pos, ok := h.Encoding.Decode(s.Data[e*rw : (e+1)*rw])
		if !ok {
			continue
		}
		c := b.Coord(pos, h.CellSize)
		i := int(c[1])*occ.Width + int(c[0])
		occ.Counts[i]++
		occ.Max = max(occ.Max, occ.Counts[i])
	}
	for _, start := range s.CellStart {
		if start != gpucore.EmptyCell {
			occ.Occupied++
		}
	}
	return occ
}

// heat maps t in [0, 1] onto a black, red, yellow, white ramp.
func heat(t float64) color.RGBA {
	channel := func(offset float64) uint8 {
		return uint8(min(max(t*3-offset, 0), 1) * 255)
	}
	return color.RGBA{R: channel(0), G: channel(1), B: channel(2), A: 255}
}

// Render draws the occupancy at one pixel per column, upscales it by scale
// and writes a caption in the top-left corner.
func (o Occupancy) Render(scale int, caption string) *image.RGBA {
	small := image.NewRGBA(image.Rect(0, 0, o.Width, o.Height))
	for y := range o.Height {
		for x := range o.Width {
			t := 0.0
			if o.Max > 0 {
				t = float64(o.Counts[y*o.Width+x]) / float64(o.Max)
			}
			// Row 0 is the minimum y, drawn at the bottom.
			small.SetRGBA(x, o.Height-1-y, heat(t))
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, o.Width*scale, o.Height*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), small, small.Bounds(), draw.Src, nil)

	if caption != "" {
		d := &font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(color.RGBA{G: 200, B: 255, A: 255}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(2, basicfont.Face7x13.Ascent+2),
		}
		d.DrawString(caption)
	}
	return dst
}

// SavePNG writes img to path.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}
