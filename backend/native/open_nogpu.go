//go:build nogpu

package native

// openPlatform is unavailable in nogpu builds; Init falls back to the noop
// device.
func openPlatform() (*opened, error) {
	return nil, ErrNoGPU
}
