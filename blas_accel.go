//go:build accelerate

package main

// #cgo darwin LDFLAGS: -framework Accelerate
// #cgo linux LDFLAGS: -lopenblas
import "C"
import (
	"github.com/paulchinnam/GPaulT/utils"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// Registers the cgo BLAS backend when built with `-tags accelerate`.
// It only becomes active once selected with -device blas (or auto).
func init() {
	utils.RegisterDevice(utils.DeviceBLAS, func() {
		blas64.Use(netlib.Implementation{})
	})
}
