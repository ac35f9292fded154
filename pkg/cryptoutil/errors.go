package cryptoutil

import "errors"

var (
	ErrInvalidKeyLen = errors.New("cryptoutil: invalid key length")
	ErrInvalidBlock  = errors.New("cryptoutil: data not a multiple of block size")
)
