/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"plotmap/internal/scene"
	"plotmap/internal/vector"
)

const (
	// DefaultThumbnailWidth is used when PNGOptions.Width is zero.
	DefaultThumbnailWidth = 800
	supersample           = 2
	maxThumbnailSide      = 8192
)

// PNGOptions controls the raster thumbnail.
type PNGOptions struct {
	Width      int         // output width in pixels
	Height     int         // zero follows the window aspect; otherwise the window is stretched
	Window     vector.Rect // empty uses the document's current viewBox
	Background color.Color // nil means white
}

// RenderPNG rasterizes the window of doc. Hidden elements are dropped before
// rendering. Text is drawn with the Go fonts, without transforms.
func RenderPNG(doc *scene.Document, opt PNGOptions) (image.Image, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	win := opt.Window
	if win.Empty() {
		win = doc.ViewBox()
	}
	if win.Empty() {
		return nil, fmt.Errorf("empty window")
	}
	w := opt.Width
	if w <= 0 {
		w = DefaultThumbnailWidth
	}
	h := opt.Height
	if h <= 0 {
		h = int(math.Round(float64(w) * win.H / win.W))
	}
	if h < 1 {
		h = 1
	}
	if w > maxThumbnailSide || h > maxThumbnailSide {
		return nil, fmt.Errorf("thumbnail %dx%d exceeds %d px", w, h, maxThumbnailSide)
	}

	c, err := doc.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone scene: %w", err)
	}
	var hidden []*scene.Element
	c.Walk(func(e *scene.Element) bool {
		if e.Hidden() {
			hidden = append(hidden, e)
		}
		return true
	})
	for _, e := range hidden {
		e.Remove()
	}
	sw, sh := w*supersample, h*supersample
	c.SetViewBox(win)
	c.Root().SetAttr("width", strconv.Itoa(sw))
	c.Root().SetAttr("height", strconv.Itoa(sh))
	data, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("parse svg for raster: %w", err)
	}
	icon.Transform = rasterx.Identity.
		Scale(float64(sw)/win.W, float64(sh)/win.H).
		Translate(-win.X, -win.Y)

	bg := opt.Background
	if bg == nil {
		bg = color.White
	}
	big := image.NewRGBA(image.Rect(0, 0, sw, sh))
	xdraw.Draw(big, big.Bounds(), image.NewUniform(bg), image.Point{}, xdraw.Src)
	scanner := rasterx.NewScannerGV(sw, sh, big, big.Bounds())
	icon.Draw(rasterx.NewDasher(sw, sh, scanner), 1)
	if err := drawLabels(big, c, win, float64(sw)/win.W, float64(sh)/win.H); err != nil {
		return nil, fmt.Errorf("draw labels: %w", err)
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), big, big.Bounds(), xdraw.Src, nil)
	return out, nil
}

// WritePNG renders the thumbnail and encodes it to w.
func WritePNG(w io.Writer, doc *scene.Document, opt PNGOptions) error {
	img, err := RenderPNG(doc, opt)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// ExportPNG writes the thumbnail to outPath.
func ExportPNG(doc *scene.Document, opt PNGOptions, outPath string) error {
	img, err := RenderPNG(doc, opt)
	if err != nil {
		return err
	}
	return writeFile(outPath, "png", func(w io.Writer) error { return png.Encode(w, img) })
}
