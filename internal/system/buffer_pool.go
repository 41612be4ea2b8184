package system

import (
	"image"
	"sync"
)

// GrayPool recycles mask-sized *image.Gray scratch buffers. Buffers are
// grouped by rectangle; a buffer handed out by Get is always zeroed.
type GrayPool struct {
	pools sync.Map // image.Rectangle -> *sync.Pool
}

var grayPool GrayPool

// GetGray takes a zeroed buffer for rect from the shared pool.
func GetGray(rect image.Rectangle) *image.Gray {
	return grayPool.Get(rect)
}

// PutGray hands a buffer back to the shared pool.
func PutGray(img *image.Gray) {
	grayPool.Put(img)
}

func (p *GrayPool) poolFor(rect image.Rectangle) *sync.Pool {
	if v, ok := p.pools.Load(rect); ok {
		return v.(*sync.Pool)
	}
	v, _ := p.pools.LoadOrStore(rect, &sync.Pool{
		New: func() any { return image.NewGray(rect) },
	})
	return v.(*sync.Pool)
}

func (p *GrayPool) Get(rect image.Rectangle) *image.Gray {
	img := p.poolFor(rect).Get().(*image.Gray)
	clear(img.Pix)
	return img
}

// Put ignores nil and sub-images, whose Pix no longer spans Rect.
func (p *GrayPool) Put(img *image.Gray) {
	if img == nil || len(img.Pix) != img.Rect.Dx()*img.Rect.Dy() {
		return
	}
	p.poolFor(img.Rect).Put(img)
}
