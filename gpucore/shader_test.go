package gpucore

import (
	"errors"
	"testing"
)

const fillWGSL = `
@group(0) @binding(0) var<storage, read_write> data: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    data[id.x] = 7u;
}
`

func TestCompileWGSL(t *testing.T) {
	words, err := CompileWGSL(fillWGSL)
	if err != nil {
		t.Fatalf("CompileWGSL() error = %v", err)
	}
	if len(words) == 0 || words[0] != 0x07230203 {
		t.Fatalf("CompileWGSL() did not produce SPIR-V (%d words)", len(words))
	}

	if _, err := CompileWGSL("fn main( {"); !errors.Is(err, ErrShaderCompile) {
		t.Errorf("CompileWGSL(invalid) error = %v, want ErrShaderCompile", err)
	}
}
