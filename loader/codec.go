package loader

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ImageExt is the file extension of binary module images.
const ImageExt = ".bim"

// ErrImageVersion is returned when an image was written by an
// incompatible encoder.
var ErrImageVersion = errors.New("unsupported image version")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("loader: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncodeImage serializes img to canonical CBOR. The same image always
// encodes to the same bytes.
func EncodeImage(img *Image) ([]byte, error) {
	out := *img
	out.Version = ImageVersion
	return cborEncMode.Marshal(&out)
}

// DecodeImage deserializes an image written by EncodeImage.
func DecodeImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("loader: unmarshal image: %w", err)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("loader: %w %d", ErrImageVersion, img.Version)
	}
	return &img, nil
}
