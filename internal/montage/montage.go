// Package montage lays stage images out on a titled contact sheet.
package montage

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/gift"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultCols = 3
	DefaultCell = 256

	margin  = 6
	titleH  = 16
	baseOff = 12
)

var (
	background = color.Gray{Y: 0}
	foreground = color.Gray{Y: 255}
)

// Panel is one titled image on the sheet.
type Panel struct {
	Title string
	Image *image.Gray
}

// Sheet tiles panels row by row, cols per row, each thumbnail fitted into a
// cell x cell square and centred under its title. Non-positive cols or cell
// fall back to the defaults. Nil panels leave an empty slot.
func Sheet(panels []Panel, cols, cell int) *image.Gray {
	if cols < 1 {
		cols = DefaultCols
	}
	if cell < 1 {
		cell = DefaultCell
	}
	rows := (len(panels) + cols - 1) / cols
	slotW := cell + margin
	slotH := cell + titleH + margin
	sheet := image.NewGray(image.Rect(0, 0, cols*slotW+margin, rows*slotH+margin))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	fit := gift.New(gift.ResizeToFit(cell, cell, gift.LinearResampling))
	for i, p := range panels {
		x0 := margin + (i%cols)*slotW
		y0 := margin + (i/cols)*slotH
		label(sheet, x0, y0+baseOff, cell, p.Title)
		if p.Image == nil || p.Image.Bounds().Empty() {
			continue
		}

		thumb := image.NewGray(fit.Bounds(p.Image.Bounds()))
		fit.Draw(thumb, p.Image)
		tb := thumb.Bounds()
		at := image.Pt(x0+(cell-tb.Dx())/2, y0+titleH+(cell-tb.Dy())/2)
		draw.Draw(sheet, tb.Sub(tb.Min).Add(at), thumb, tb.Min, draw.Src)
	}
	return sheet
}

// label writes s with its baseline at (x, y), truncated to fit width.
func label(dst draw.Image, x, y, width int, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(foreground),
		Face: basicfont.Face7x13,
	}
	for len(s) > 0 && d.MeasureString(s).Ceil() > width {
		s = s[:len(s)-1]
	}
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}
