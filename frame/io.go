package frame

import (
	"errors"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"

	_ "golang.org/x/image/webp"
)

// FromImage converts any decoded image into a packed RGB frame.
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(b)
		draw.Draw(rgba, b, img, b.Min, draw.Src)
	}

	f := New(w, h)
	for y := 0; y < h; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+w*4]
		di := y * w * BytesPerPixel
		for x := 0; x < w; x++ {
			si := x * 4
			f.Pix[di] = row[si]
			f.Pix[di+1] = row[si+1]
			f.Pix[di+2] = row[si+2]
			di += BytesPerPixel
		}
	}
	return f
}

// ToImage converts the frame into an opaque RGBA image.
func (f *Frame) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		si := y * f.Width * BytesPerPixel
		di := y * img.Stride
		for x := 0; x < f.Width; x++ {
			img.Pix[di] = f.Pix[si]
			img.Pix[di+1] = f.Pix[si+1]
			img.Pix[di+2] = f.Pix[si+2]
			img.Pix[di+3] = 255
			si += BytesPerPixel
			di += 4
		}
	}
	return img
}

// GrayAt returns the Rec.601 luminance of the pixel at (x, y) in [0, 1].
func (f *Frame) GrayAt(x, y int) float32 {
	r, g, b := f.RGB(x, y)
	return (0.299*float32(r) + 0.587*float32(g) + 0.114*float32(b)) / 255.0
}

// Load decodes an image file (PNG/JPEG/GIF/WEBP) into a frame.
func Load(path string) (*Frame, error) {
	fp, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	img, _, err := image.Decode(fp)
	if err != nil {
		return nil, err
	}
	return FromImage(img), nil
}

// SavePNG encodes the frame as a PNG file.
func (f *Frame) SavePNG(path string) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fp.Close()
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(fp, f.ToImage())
}

// SaveJPEG encodes the frame as a JPEG file with the given quality (1-100).
func (f *Frame) SaveJPEG(path string, quality int) error {
	if quality < 1 || quality > 100 {
		return errors.New("jpeg quality 1..100")
	}
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fp.Close()
	return jpeg.Encode(fp, f.ToImage(), &jpeg.Options{Quality: quality})
}
