package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// textureSet holds the MSAA color and single-sample resolve textures
// for a chart render target:
//   - MSAA color: 4x samples, BGRA8Unorm, RenderAttachment
//   - Resolve: 1x sample, BGRA8Unorm, RenderAttachment | CopySrc
//
// Chart geometry never needs a stencil buffer; lines, strips, and
// points rasterize without overlap rules.
type textureSet struct {
	msaaTex     hal.Texture
	msaaView    hal.TextureView
	resolveTex  hal.Texture
	resolveView hal.TextureView
	width       uint32
	height      uint32
}

// ensureTextures creates or recreates textures if the requested
// dimensions differ from the current size. No-op when sizes match.
func (ts *textureSet) ensureTextures(device hal.Device, w, h uint32, labelPrefix string) error {
	if ts.width == w && ts.height == h && ts.msaaTex != nil && ts.resolveTex != nil {
		return nil
	}
	ts.destroyTextures(device)

	if err := ts.createMSAA(device, w, h, labelPrefix); err != nil {
		return err
	}

	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	resolveTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         labelPrefix + "_resolve",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		ts.destroyTextures(device)
		return fmt.Errorf("create resolve texture: %w", err)
	}
	ts.resolveTex = resolveTex

	resolveView, err := device.CreateTextureView(resolveTex, &hal.TextureViewDescriptor{
		Label: labelPrefix + "_resolve_view",
	})
	if err != nil {
		ts.destroyTextures(device)
		return fmt.Errorf("create resolve view: %w", err)
	}
	ts.resolveView = resolveView

	ts.width = w
	ts.height = h
	return nil
}

// ensureSurfaceTextures creates only the MSAA color texture for
// surface mode, where the host's surface view is the resolve target.
// A leftover resolve texture from offscreen mode is destroyed.
func (ts *textureSet) ensureSurfaceTextures(device hal.Device, w, h uint32, labelPrefix string) error {
	if ts.width == w && ts.height == h && ts.msaaTex != nil && ts.resolveTex == nil {
		return nil
	}
	ts.destroyTextures(device)

	if err := ts.createMSAA(device, w, h, labelPrefix); err != nil {
		return err
	}
	ts.width = w
	ts.height = h
	return nil
}

func (ts *textureSet) createMSAA(device hal.Device, w, h uint32, labelPrefix string) error {
	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	msaaTex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         labelPrefix + "_msaa_color",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   sampleCount,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return fmt.Errorf("create MSAA color texture: %w", err)
	}
	ts.msaaTex = msaaTex

	msaaView, err := device.CreateTextureView(msaaTex, &hal.TextureViewDescriptor{
		Label: labelPrefix + "_msaa_color_view",
	})
	if err != nil {
		ts.destroyTextures(device)
		return fmt.Errorf("create MSAA color view: %w", err)
	}
	ts.msaaView = msaaView
	return nil
}

// destroyTextures releases all texture resources and resets dimensions.
func (ts *textureSet) destroyTextures(device hal.Device) {
	if ts.resolveView != nil {
		device.DestroyTextureView(ts.resolveView)
		ts.resolveView = nil
	}
	if ts.resolveTex != nil {
		device.DestroyTexture(ts.resolveTex)
		ts.resolveTex = nil
	}
	if ts.msaaView != nil {
		device.DestroyTextureView(ts.msaaView)
		ts.msaaView = nil
	}
	if ts.msaaTex != nil {
		device.DestroyTexture(ts.msaaTex)
		ts.msaaTex = nil
	}
	ts.width = 0
	ts.height = 0
}
