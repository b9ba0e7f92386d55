package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/traceplot/traceplot/render"
)

// gpuWaitTimeout bounds the fence wait after submission.
const gpuWaitTimeout = 5 * time.Second

// encodeSubmit records the frame's render pass, submits it, and in
// offscreen mode performs the staging readback into r.pixels.
//
// Draw order inside the pass: grid, axes, then per series the area
// fill, the line, and point markers. Series draw in plan order, which
// the chart keeps at insertion order.
func (r *Renderer) encodeSubmit(plan *render.FramePlan, w, h uint32) error {
	encoder, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "chart_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("chart_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}

	resolveView := r.textures.resolveView
	surface := r.surfaceView != nil
	if surface {
		resolveView = r.surfaceView
	}

	loadOp := gputypes.LoadOpClear
	if !plan.Clear {
		loadOp = gputypes.LoadOpLoad
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "chart_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:          r.textures.msaaView,
			ResolveTarget: resolveView,
			LoadOp:        loadOp,
			StoreOp:       gputypes.StoreOpStore,
			ClearValue:    premulClearColor(plan.Background),
		}},
	})

	if plan.Grid != nil && r.grid.vertexCount > 0 {
		rp.SetPipeline(r.pipelines.grid)
		rp.SetBindGroup(0, r.grid.bindGroup, nil)
		rp.SetVertexBuffer(0, r.grid.vertBuf, 0)
		rp.Draw(r.grid.vertexCount, 1, 0, 0)
	}
	if plan.Axes != nil && r.axes.vertexCount > 0 {
		rp.SetPipeline(r.pipelines.grid)
		rp.SetBindGroup(0, r.axes.bindGroup, nil)
		rp.SetVertexBuffer(0, r.axes.vertBuf, 0)
		rp.Draw(r.axes.vertexCount, 1, 0, 0)
	}

	for i := range plan.Series {
		r.drawSeries(rp, &plan.Series[i])
	}

	rp.End()

	if surface {
		cmdBuf, err := encoder.EndEncoding()
		if err != nil {
			return fmt.Errorf("end encoding: %w", err)
		}
		defer r.device.FreeCommandBuffer(cmdBuf)
		return r.submitWait(cmdBuf)
	}
	return r.readback(encoder, w, h)
}

// drawSeries records the area, line, and point draws for one series.
// Series whose buffers never uploaded (allocation failure) are skipped
// so the rest of the frame still renders.
func (r *Renderer) drawSeries(rp hal.RenderPassEncoder, sd *render.SeriesDraw) {
	sr, ok := r.series[sd.Key]
	if !ok || sr.lineBuf == nil || sr.sampleCount == 0 {
		return
	}
	count := uint32(sr.sampleCount)

	if sd.Area && sr.hasArea && sr.areaBindGroup != nil && count >= 2 {
		rp.SetPipeline(r.pipelines.area)
		rp.SetBindGroup(0, sr.areaBindGroup, nil)
		rp.SetVertexBuffer(0, sr.areaBuf, 0)
		rp.Draw(count*2, 1, 0, 0)
	}

	if count >= 2 {
		n := uint32(passDim(sd.Width))
		rp.SetPipeline(r.pipelines.line)
		rp.SetBindGroup(0, sr.bindGroup, nil)
		rp.SetVertexBuffer(0, sr.lineBuf, 0)
		rp.Draw(count, n*n, 0, 0)
	}

	if sd.Points {
		rp.SetPipeline(r.pipelines.point)
		rp.SetBindGroup(0, sr.bindGroup, nil)
		rp.SetVertexBuffer(0, sr.lineBuf, 0)
		rp.Draw(count, 1, 0, 0)
	}
}

// readback copies the resolve texture to a staging buffer, submits,
// waits, and unpacks the rows into tightly packed RGBA pixels.
func (r *Renderer) readback(encoder hal.CommandEncoder, w, h uint32) error {
	// After MSAA resolve the texture is in attachment layout;
	// CopyTextureToBuffer needs transfer source. No-op on backends
	// without explicit layouts.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: r.textures.resolveTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageRenderAttachment,
			NewUsage: gputypes.TextureUsageCopySrc,
		},
	}})

	// Copy pitch must be 256-byte aligned.
	bytesPerRow := w * 4
	const copyPitchAlignment = 256
	alignedBytesPerRow := (bytesPerRow + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(alignedBytesPerRow) * uint64(h)

	stagingBuf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "chart_staging",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		encoder.DiscardEncoding()
		return fmt.Errorf("%w: staging (%d bytes): %v", ErrAllocation, stagingSize, err)
	}
	defer r.device.DestroyBuffer(stagingBuf)

	encoder.CopyTextureToBuffer(r.textures.resolveTex, stagingBuf, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: alignedBytesPerRow, RowsPerImage: h},
		TextureBase:  hal.ImageCopyTexture{Texture: r.textures.resolveTex, MipLevel: 0},
		Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	}})

	// Return the resolve texture to attachment layout for the next
	// frame's resolve barrier.
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: r.textures.resolveTex,
		Usage: hal.TextureUsageTransition{
			OldUsage: gputypes.TextureUsageCopySrc,
			NewUsage: gputypes.TextureUsageRenderAttachment,
		},
	}})

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer r.device.FreeCommandBuffer(cmdBuf)

	if err := r.submitWait(cmdBuf); err != nil {
		return err
	}

	readbackBuf := make([]byte, stagingSize)
	if err := r.queue.ReadBuffer(stagingBuf, 0, readbackBuf); err != nil {
		return fmt.Errorf("readback: %w", err)
	}

	need := int(bytesPerRow) * int(h)
	if cap(r.pixels) < need {
		r.pixels = make([]byte, need)
	}
	r.pixels = r.pixels[:need]
	if alignedBytesPerRow == bytesPerRow {
		bgraToRGBA(readbackBuf[:need], r.pixels)
	} else {
		for row := uint32(0); row < h; row++ {
			src := readbackBuf[row*alignedBytesPerRow : row*alignedBytesPerRow+bytesPerRow]
			dst := r.pixels[row*bytesPerRow : (row+1)*bytesPerRow]
			bgraToRGBA(src, dst)
		}
	}
	return nil
}

// submitWait submits the command buffer and blocks on its fence.
func (r *Renderer) submitWait(cmdBuf hal.CommandBuffer) error {
	fence, err := r.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer r.device.DestroyFence(fence)

	if err := r.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := r.device.Wait(fence, 1, gpuWaitTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("wait for GPU: ok=%v err=%w", fenceOK, err)
	}
	return nil
}

// premulClearColor converts a straight-alpha background color to the
// premultiplied clear value the blend state expects.
func premulClearColor(c [4]float32) gputypes.Color {
	a := float64(c[3])
	return gputypes.Color{
		R: float64(c[0]) * a,
		G: float64(c[1]) * a,
		B: float64(c[2]) * a,
		A: a,
	}
}

// bgraToRGBA converts BGRA8 pixel bytes to RGBA8. src and dst must be
// the same length; dst may not alias src.
func bgraToRGBA(src, dst []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i]
		dst[i+3] = src[i+3]
	}
}
