package passes

import (
	"github.com/spaghettifunk/lumen/engine/config"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
	"github.com/spaghettifunk/lumen/engine/renderer/resources"
)

// Render target names. History pairs resolve to name.a or name.b depending on
// the frame parity.
const (
	TargetShadowMap      = "shadow.map"
	TargetSceneColor     = "scene.color"
	TargetDepth          = "depth"
	TargetNormal         = "normal"
	TargetMotion         = "motion"
	TargetObjectID       = "object_id"
	TargetAlbedo         = "gbuffer.albedo"
	TargetMaterial       = "gbuffer.material"
	TargetSSAORaw        = "ssao.raw"
	TargetSSAO           = "ssao.blurred"
	TargetShadowRaw      = "shadow.raw"
	TargetShadowHistory  = "shadow.history"
	TargetShadowDenoised = "shadow.denoised"
	TargetSSRColor       = "ssr.color"
	TargetColorHistory   = "taa.history"
)

const (
	DepthFormat = metadata.FormatD32F
	// HDR color before tone mapping
	ColorFormat = metadata.FormatRGBA16F
)

type TargetSpec struct {
	Name    string
	Format  metadata.Format
	Usage   metadata.ImageUsage
	History bool
	// Shadow sized targets use the shadow map size instead of the render extent.
	Shadow bool
}

const (
	colorUsage   = metadata.ImageUsageColorAttachment | metadata.ImageUsageSampled
	storageUsage = metadata.ImageUsageStorage | metadata.ImageUsageSampled
	depthUsage   = metadata.ImageUsageDepthAttachment | metadata.ImageUsageSampled
)

// Catalogue lists every render target the passes use.
func Catalogue() []TargetSpec {
	return []TargetSpec{
		{Name: TargetShadowMap, Format: DepthFormat, Usage: depthUsage, Shadow: true},
		{Name: TargetSceneColor, Format: ColorFormat, Usage: colorUsage | metadata.ImageUsageStorage},
		{Name: TargetDepth, Format: DepthFormat, Usage: depthUsage, History: true},
		{Name: TargetNormal, Format: metadata.FormatRGBA16F, Usage: colorUsage, History: true},
		{Name: TargetMotion, Format: metadata.FormatRG16F, Usage: colorUsage},
		{Name: TargetObjectID, Format: metadata.FormatR32Uint, Usage: colorUsage | metadata.ImageUsageTransferSrc},
		{Name: TargetAlbedo, Format: metadata.FormatRGBA8Unorm, Usage: colorUsage},
		{Name: TargetMaterial, Format: metadata.FormatRGBA8Unorm, Usage: colorUsage},
		{Name: TargetSSAORaw, Format: metadata.FormatR16F, Usage: storageUsage},
		{Name: TargetSSAO, Format: metadata.FormatR16F, Usage: storageUsage},
		{Name: TargetShadowRaw, Format: metadata.FormatR16F, Usage: storageUsage},
		{Name: TargetShadowHistory, Format: metadata.FormatR16F, Usage: storageUsage, History: true},
		{Name: TargetShadowDenoised, Format: metadata.FormatR16F, Usage: storageUsage},
		{Name: TargetSSRColor, Format: ColorFormat, Usage: storageUsage | metadata.ImageUsageColorAttachment},
		{Name: TargetColorHistory, Format: ColorFormat, Usage: storageUsage | metadata.ImageUsageTransferSrc, History: true},
	}
}

// CreateTargets registers the catalogue in the table.
func CreateTargets(table *resources.Table, settings config.Settings) error {
	w, h := settings.RenderExtent()
	for _, entry := range Catalogue() {
		desc := metadata.ImageDesc{Name: entry.Name, Width: w, Height: h, Format: entry.Format, Usage: entry.Usage}
		if entry.Shadow {
			desc.Width, desc.Height = settings.Shadow.MapSize, settings.Shadow.MapSize
		}
		var err error
		if entry.History {
			err = table.CreateHistory(desc)
		} else {
			_, err = table.Create(desc)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
