package detector

import "image"

type component struct {
	rect image.Rectangle
	area int
}

var (
	neighbors4 = [4]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	neighbors8 = [8]image.Point{{1, 0}, {-1, 0}, {0, 1}, {0, -1}, {1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// findComponents returns the external 8-connected components of mask.
// Holes are filled first, so anything nested inside a hole belongs to
// the enclosing component. Area counts only set pixels.
func findComponents(mask *image.Gray) []component {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	outside := markOutside(mask)
	visited := make([]bool, w*h)

	components := []component{}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if outside[i] || visited[i] {
				continue
			}
			components = append(components, floodFill(mask, outside, visited, x, y))
		}
	}
	return components
}

// markOutside flags background pixels 4-connected to the frame edge.
// Everything else is either foreground or a hole in it.
func markOutside(mask *image.Gray) []bool {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	outside := make([]bool, w*h)
	stack := []image.Point{}

	push := func(x, y int) {
		i := y*w + x
		if outside[i] || mask.Pix[y*mask.Stride+x] != 0 {
			return
		}
		outside[i] = true
		stack = append(stack, image.Point{X: x, Y: y})
	}

	for x := 0; x < w; x++ {
		push(x, 0)
		push(x, h-1)
	}
	for y := 0; y < h; y++ {
		push(0, y)
		push(w-1, y)
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, d := range neighbors4 {
			nx, ny := p.X+d.X, p.Y+d.Y
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			push(nx, ny)
		}
	}
	return outside
}

// floodFill walks one filled component and returns its bounding
// rectangle and set-pixel count
func floodFill(mask *image.Gray, outside, visited []bool, startX, startY int) component {
	w, h := mask.Rect.Dx(), mask.Rect.Dy()
	minX, minY := startX, startY
	maxX, maxY := startX, startY
	area := 0

	visited[startY*w+startX] = true
	stack := []image.Point{{X: startX, Y: startY}}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		x, y := p.X, p.Y
		if mask.Pix[y*mask.Stride+x] != 0 {
			area++
		}

		// Update bounds
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)

		for _, d := range neighbors8 {
			nx, ny := x+d.X, y+d.Y
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			i := ny*w + nx
			if outside[i] || visited[i] {
				continue
			}
			visited[i] = true
			stack = append(stack, image.Point{X: nx, Y: ny})
		}
	}

	return component{rect: image.Rect(minX, minY, maxX+1, maxY+1), area: area}
}
