package montage

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func solid(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func TestSheetGeometry(t *testing.T) {
	panels := make([]Panel, 7)
	for i := range panels {
		panels[i] = Panel{Title: "stage", Image: solid(40, 20, 200)}
	}
	sheet := Sheet(panels, 3, 64)
	b := sheet.Bounds()
	assert.Equal(t, 3*(64+margin)+margin, b.Dx())
	assert.Equal(t, 3*(64+titleH+margin)+margin, b.Dy())
}

func TestSheetDefaults(t *testing.T) {
	sheet := Sheet([]Panel{{Title: "only", Image: solid(8, 8, 1)}}, 0, 0)
	assert.Equal(t, DefaultCols*(DefaultCell+margin)+margin, sheet.Bounds().Dx())
}

func TestSheetPlacesThumbnail(t *testing.T) {
	sheet := Sheet([]Panel{{Title: "", Image: solid(50, 50, 180)}}, 1, 32)
	// Centre of the only cell.
	c := sheet.GrayAt(margin+16, margin+titleH+16)
	assert.InDelta(t, 180, int(c.Y), 1)
	// Margins stay background.
	assert.Equal(t, uint8(0), sheet.GrayAt(1, 1).Y)
}

func TestSheetDrawsTitles(t *testing.T) {
	sheet := Sheet([]Panel{{Title: "CLAHE", Image: nil}}, 1, 64)
	lit := 0
	for y := margin; y < margin+titleH; y++ {
		for x := margin; x < margin+64; x++ {
			if sheet.GrayAt(x, y).Y > 0 {
				lit++
			}
		}
	}
	assert.Greater(t, lit, 0)
}

func TestSheetEmpty(t *testing.T) {
	sheet := Sheet(nil, 3, 16)
	assert.Equal(t, margin, sheet.Bounds().Dy())
}
