package delegated

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/cc/internal/cache"
	"github.com/gogpu/cc/quad"
)

// ErrNoProgram is returned for materials the host draws with its
// built-in programs.
var ErrNoProgram = errors.New("delegated: material has no custom program")

// Video materials sample planes the host's built-in texture program
// cannot combine, so they carry their own WGSL.
const yuvVideoWGSL = `
struct VertexOutput {
  @location(0) uv : vec2<f32>,
  @builtin(position) position : vec4<f32>,
}

struct YUVParams {
  color_matrix : mat4x4<f32>,
  alpha : vec4<f32>,
}

@group(0) @binding(0) var<uniform> params : YUVParams;
@group(0) @binding(1) var y_plane : texture_2d<f32>;
@group(0) @binding(2) var u_plane : texture_2d<f32>;
@group(0) @binding(3) var v_plane : texture_2d<f32>;
@group(0) @binding(4) var plane_sampler : sampler;

@vertex
fn vs_main(
  @location(0) pos : vec2<f32>,
  @location(1) uv : vec2<f32>,
) -> VertexOutput {
  var out : VertexOutput;
  out.uv = uv;
  out.position = vec4<f32>(pos, 0.0, 1.0);
  return out;
}

@fragment
fn fs_main(@location(0) uv : vec2<f32>) -> @location(0) vec4<f32> {
  let y = textureSample(y_plane, plane_sampler, uv).r;
  let u = textureSample(u_plane, plane_sampler, uv).r;
  let v = textureSample(v_plane, plane_sampler, uv).r;
  let rgb = params.color_matrix * vec4<f32>(y, u, v, 1.0);
  let a = params.alpha.x;
  return vec4<f32>(rgb.x * a, rgb.y * a, rgb.z * a, a);
}
`

const streamVideoWGSL = `
struct VertexOutput {
  @location(0) uv : vec2<f32>,
  @builtin(position) position : vec4<f32>,
}

struct StreamParams {
  tex_matrix : mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> params : StreamParams;
@group(0) @binding(1) var stream_texture : texture_2d<f32>;
@group(0) @binding(2) var stream_sampler : sampler;

@vertex
fn vs_main(
  @location(0) pos : vec2<f32>,
  @location(1) uv : vec2<f32>,
) -> VertexOutput {
  let t = params.tex_matrix * vec4<f32>(uv, 0.0, 1.0);
  var out : VertexOutput;
  out.uv = t.xy;
  out.position = vec4<f32>(pos, 0.0, 1.0);
  return out;
}

@fragment
fn fs_main(@location(0) uv : vec2<f32>) -> @location(0) vec4<f32> {
  return textureSample(stream_texture, stream_sampler, uv);
}
`

var programSources = map[quad.Material]string{
	quad.MaterialYUVVideo:    yuvVideoWGSL,
	quad.MaterialStreamVideo: streamVideoWGSL,
}

// programs holds compiled SPIR-V per material. Compilation happens once
// per process.
var programs = cache.New[quad.Material, []byte](0, nil)

// Program returns the SPIR-V program of material m.
func Program(m quad.Material) ([]byte, error) {
	src, ok := programSources[m]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProgram, m)
	}
	return programs.GetOrCreate(m, func() ([]byte, error) {
		spirv, err := naga.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("delegated: compile %s program: %w", m, err)
		}
		return spirv, nil
	})
}
