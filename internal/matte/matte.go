// Package matte turns generated sprites with a near-white background into
// transparent cutouts. Only background connected to the image border is
// removed; bright regions enclosed by artwork (eyes, highlights) survive.
package matte

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
)

// DefaultThreshold is the per-channel brightness above which a pixel counts
// as background-candidate.
const DefaultThreshold = 230

type Processor struct {
	threshold uint8
}

func New(threshold int) *Processor {
	if threshold < 0 || threshold > 255 {
		threshold = DefaultThreshold
	}
	return &Processor{threshold: uint8(threshold)}
}

// CutoutPNG decodes a PNG, clears the border-connected white background and
// re-encodes it. If the data cannot be decoded or re-encoded the input is
// returned unchanged; the matte is a best-effort enhancement, never a hard
// dependency for display.
func (p *Processor) CutoutPNG(data []byte) []byte {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	b := src.Bounds()
	img := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), src, b.Min, draw.Src)

	p.Cutout(img)

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return data
	}
	return out.Bytes()
}

// Cutout flood-fills from the border over background-candidate pixels and
// sets their alpha to zero, in place. Uses an explicit stack and a visited
// bitmap so memory stays bounded on large images.
func (p *Processor) Cutout(img *image.NRGBA) {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	if width == 0 || height == 0 {
		return
	}

	candidate := func(x, y int) bool {
		i := y*img.Stride + x*4
		return img.Pix[i] > p.threshold && img.Pix[i+1] > p.threshold && img.Pix[i+2] > p.threshold
	}

	visited := make([]bool, width*height)
	stack := make([][2]int, 0, 2*(width+height))

	seed := func(x, y int) {
		if !visited[y*width+x] && candidate(x, y) {
			visited[y*width+x] = true
			stack = append(stack, [2]int{x, y})
		}
	}

	for x := 0; x < width; x++ {
		seed(x, 0)
		seed(x, height-1)
	}
	for y := 0; y < height; y++ {
		seed(0, y)
		seed(width-1, y)
	}

	for len(stack) > 0 {
		px := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		x, y := px[0], px[1]

		img.Pix[y*img.Stride+x*4+3] = 0

		for _, n := range [4][2]int{{x + 1, y}, {x - 1, y}, {x, y + 1}, {x, y - 1}} {
			nx, ny := n[0], n[1]
			if nx < 0 || nx >= width || ny < 0 || ny >= height {
				continue
			}
			if visited[ny*width+nx] || !candidate(nx, ny) {
				continue
			}
			visited[ny*width+nx] = true
			stack = append(stack, [2]int{nx, ny})
		}
	}
}
