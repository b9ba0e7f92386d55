// Copyright 2026 The traceplot Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// sampleCount is the MSAA sample count for all chart render targets.
const sampleCount = 4

// vertexStride is the byte stride per vertex in every chart pipeline:
// position (vec2<f32>) = 8 bytes at location 0.
const vertexStride = 8

// seriesUniformSize is the byte size of the series shader uniform:
// scale vec2 + offset vec2 + step vec2 + pass_center + pass_dim +
// color vec4 = 48 bytes.
const seriesUniformSize = 48

// gridUniformSize is the byte size of the grid shader uniform:
// viewport vec2 + pad vec2 + color vec4 = 32 bytes.
const gridUniformSize = 32

// pipelineSet holds the shader modules, layouts, and render pipelines
// for all chart draw kinds. All pipelines share the single-uniform bind
// group layout and the position-only vertex layout; they differ only in
// shader and primitive topology.
//
//	line   LineStrip      series shader, instanced for wide lines
//	area   TriangleStrip  series shader, single instance
//	point  PointList      series shader, single instance
//	grid   LineList       grid shader, pixel-space vertices
type pipelineSet struct {
	seriesShader  hal.ShaderModule
	gridShader    hal.ShaderModule
	uniformLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout

	line  hal.RenderPipeline
	area  hal.RenderPipeline
	point hal.RenderPipeline
	grid  hal.RenderPipeline
}

// create compiles both shaders and builds the four render pipelines.
// Any failure tears down everything already created; a pipelineSet is
// either fully usable or empty.
func (ps *pipelineSet) create(device hal.Device) error {
	seriesShader, err := createShaderModule(device, "chart_series_shader", seriesShaderSource)
	if err != nil {
		return err
	}
	ps.seriesShader = seriesShader

	gridShader, err := createShaderModule(device, "chart_grid_shader", gridShaderSource)
	if err != nil {
		ps.destroy(device)
		return err
	}
	ps.gridShader = gridShader

	uniformLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "chart_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
		},
	})
	if err != nil {
		ps.destroy(device)
		return fmt.Errorf("create uniform layout: %w", err)
	}
	ps.uniformLayout = uniformLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "chart_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{ps.uniformLayout},
	})
	if err != nil {
		ps.destroy(device)
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	ps.pipeLayout = pipeLayout

	kinds := []struct {
		dst      *hal.RenderPipeline
		label    string
		shader   hal.ShaderModule
		topology gputypes.PrimitiveTopology
	}{
		{&ps.line, "chart_line_pipeline", ps.seriesShader, gputypes.PrimitiveTopologyLineStrip},
		{&ps.area, "chart_area_pipeline", ps.seriesShader, gputypes.PrimitiveTopologyTriangleStrip},
		{&ps.point, "chart_point_pipeline", ps.seriesShader, gputypes.PrimitiveTopologyPointList},
		{&ps.grid, "chart_grid_pipeline", ps.gridShader, gputypes.PrimitiveTopologyLineList},
	}
	for _, k := range kinds {
		pipeline, err := ps.createPipeline(device, k.label, k.shader, k.topology)
		if err != nil {
			ps.destroy(device)
			return err
		}
		*k.dst = pipeline
	}
	return nil
}

// createPipeline builds one render pipeline with premultiplied alpha
// blending and MSAA against the shared layout.
func (ps *pipelineSet) createPipeline(
	device hal.Device,
	label string,
	shader hal.ShaderModule,
	topology gputypes.PrimitiveTopology,
) (hal.RenderPipeline, error) {
	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  label,
		Layout: ps.pipeLayout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    chartVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    gputypes.TextureFormatBGRA8Unorm,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: topology,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: sampleCount,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	return pipeline, nil
}

// destroy releases all pipeline resources in reverse creation order.
// Safe to call multiple times or on a partially created set.
func (ps *pipelineSet) destroy(device hal.Device) {
	if device == nil {
		return
	}
	for _, p := range []*hal.RenderPipeline{&ps.grid, &ps.point, &ps.area, &ps.line} {
		if *p != nil {
			device.DestroyRenderPipeline(*p)
			*p = nil
		}
	}
	if ps.pipeLayout != nil {
		device.DestroyPipelineLayout(ps.pipeLayout)
		ps.pipeLayout = nil
	}
	if ps.uniformLayout != nil {
		device.DestroyBindGroupLayout(ps.uniformLayout)
		ps.uniformLayout = nil
	}
	if ps.gridShader != nil {
		device.DestroyShaderModule(ps.gridShader)
		ps.gridShader = nil
	}
	if ps.seriesShader != nil {
		device.DestroyShaderModule(ps.seriesShader)
		ps.seriesShader = nil
	}
}

// chartVertexLayout returns the position-only vertex buffer layout
// shared by every chart pipeline.
func chartVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: vertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			},
		},
	}
}
