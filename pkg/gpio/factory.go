package gpio

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Backend names accepted by NewDriver.
const (
	BackendAuto  = "auto"
	BackendVattu = "vattu"
	BackendSim   = "sim"
)

// gpioMemPath is the device the Vattu driver maps.
var gpioMemPath = "/dev/gpiomem"

// NewDriver returns the driver for backend. "auto" picks Vattu when running
// on an ARM Linux board with /dev/gpiomem, otherwise the simulated driver.
func NewDriver(backend string, logger *slog.Logger) (Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendVattu:
		return OpenVattu()
	case BackendSim:
		return NewSimulated(), nil
	case BackendAuto, "":
		if !hardwareAvailable() {
			logger.Warn("GPIO hardware not detected, using simulated pins",
				"goos", runtime.GOOS, "goarch", runtime.GOARCH)
			return NewSimulated(), nil
		}
		drv, err := OpenVattu()
		if err != nil {
			logger.Warn("GPIO hardware unavailable, using simulated pins", "error", err)
			return NewSimulated(), nil
		}
		return drv, nil
	default:
		return nil, fmt.Errorf("gpio: unknown backend %q", backend)
	}
}

func hardwareAvailable() bool {
	if runtime.GOOS != "linux" {
		return false
	}
	if runtime.GOARCH != "arm" && runtime.GOARCH != "arm64" {
		return false
	}
	_, err := os.Stat(gpioMemPath)
	return err == nil
}
