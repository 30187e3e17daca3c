package utils

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrDeviceUnavailable = errors.New("device unavailable")

const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceBLAS = "blas"
)

var (
	devMu       sync.Mutex
	devEnablers = map[string]func(){
		DeviceCPU: func() {}, // gonum's pure-Go BLAS is the default
	}
)

// RegisterDevice makes a backend selectable. Build-tagged files call this
// from init, e.g. the cgo BLAS backend under -tags accelerate.
func RegisterDevice(name string, enable func()) {
	devMu.Lock()
	defer devMu.Unlock()
	devEnablers[name] = enable
}

// Devices lists the backends compiled into this binary.
func Devices() []string {
	devMu.Lock()
	defer devMu.Unlock()
	out := make([]string, 0, len(devEnablers))
	for name := range devEnablers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SelectDevice resolves the preference ("auto" = accelerator if compiled in,
// else cpu), switches the BLAS backend and returns the chosen name.
func SelectDevice(pref string) (string, error) {
	devMu.Lock()
	defer devMu.Unlock()
	name := pref
	if name == "" || name == DeviceAuto {
		name = DeviceCPU
		if _, ok := devEnablers[DeviceBLAS]; ok {
			name = DeviceBLAS
		}
	}
	enable, ok := devEnablers[name]
	if !ok {
		return "", fmt.Errorf("%w: %q (rebuild with -tags accelerate for %q)", ErrDeviceUnavailable, name, DeviceBLAS)
	}
	enable()
	return name, nil
}
