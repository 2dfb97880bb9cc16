package native

import "github.com/gogpu/wgpu/hal"

// createShaderModule creates a HAL shader module from SPIR-V code.
func createShaderModule(device hal.Device, label string, spirv []uint32) (hal.ShaderModule, error) {
	return device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: label,
		Source: hal.ShaderSource{
			SPIRV: spirv,
		},
	})
}

// pipelineObjects collects the HAL objects behind one pipeline so a
// partially built pipeline can be torn down in one call.
type pipelineObjects struct {
	modules []hal.ShaderModule
	groups  []hal.BindGroupLayout
	layout  hal.PipelineLayout
}

// destroy releases the objects in reverse creation order.
func (p *pipelineObjects) destroy(device hal.Device) {
	if p.layout != nil {
		device.DestroyPipelineLayout(p.layout)
	}
	for _, g := range p.groups {
		device.DestroyBindGroupLayout(g)
	}
	for _, m := range p.modules {
		device.DestroyShaderModule(m)
	}
	*p = pipelineObjects{}
}
