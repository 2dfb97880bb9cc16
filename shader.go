package gpurt

import (
	"fmt"

	"github.com/gogpu/gpurt/gpucore"
)

// CompileShader compiles WGSL source to SPIR-V for gpucore.ShaderCode.
// Results are kept in a bounded LRU cache keyed by the source text.
// Compilation is serialized.
func (c *Context) CompileShader(source string) ([]uint32, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	c.shaderMu.Lock()
	defer c.shaderMu.Unlock()

	if spirv, ok := c.shaders.Get(source); ok {
		return spirv, nil
	}
	spirv, err := gpucore.CompileWGSL(source)
	if err != nil {
		return nil, fmt.Errorf("gpurt: %w", err)
	}
	c.shaders.Add(source, spirv)
	slogger().Debug("gpurt: shader compiled", "words", len(spirv), "cached", c.shaders.Len())
	return spirv, nil
}
