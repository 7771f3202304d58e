//go:build !linux || tinygo

package platform

import (
	"log/slog"

	"backplane-go/errcode"
)

func openPeriph(PeriphConfig, *slog.Logger) (*Board, error) {
	return nil, &errcode.E{C: errcode.Unsupported, Op: "platform open", Msg: "periph requires linux"}
}
