package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// opened is a device opened by the backend itself.
type opened struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	adapter  string
}

// openNoop opens the HAL noop device. It accepts every call and completes
// every submission immediately.
func openNoop() (*opened, error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("create noop instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, ErrNoGPU
	}
	dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("open noop device: %w", err)
	}
	return &opened{instance: instance, device: dev.Device, queue: dev.Queue, adapter: adapters[0].Info.Name}, nil
}

// selectAdapter prefers a discrete or integrated GPU over software
// adapters.
func selectAdapter(adapters []hal.ExposedAdapter) *hal.ExposedAdapter {
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			return &adapters[i]
		}
	}
	return &adapters[0]
}
