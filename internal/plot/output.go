package plot

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"
)

// Encode writes img as PNG, or as TIFF when format is "tif" or "tiff".
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "", "png":
		return png.Encode(w, img)
	case "tif", "tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// Save writes img to path, choosing the format from the extension.
func Save(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := Encode(f, img, filepath.Ext(path)); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
