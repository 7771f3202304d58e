//go:build !rp2040

package platform

import (
	"log/slog"

	"backplane-go/errcode"
)

func openRP2040(*slog.Logger) (*Board, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "platform open", Msg: "rp2040 requires a tinygo build"}
}
