package config

import (
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/jitter"
)

type RendererSettings struct {
	Mode        RendererMode `toml:"mode"`
	Width       uint32       `toml:"width"`
	Height      uint32       `toml:"height"`
	RenderScale float32      `toml:"render_scale"`
}

type ShadowSettings struct {
	Enabled        bool    `toml:"enabled"`
	PCF            bool    `toml:"pcf"`
	RayTraced      bool    `toml:"ray_traced"`
	TemporalWeight float32 `toml:"temporal_weight"`
	MapSize        uint32  `toml:"map_size"`
}

type SSAOSettings struct {
	Enabled    bool    `toml:"enabled"`
	Bias       float32 `toml:"bias"`
	KernelSize uint32  `toml:"kernel_size"`
	Radius     float32 `toml:"radius"`
}

type SSRSettings struct {
	Enabled     bool    `toml:"enabled"`
	MaxDistance float32 `toml:"max_distance"`
	Resolution  float32 `toml:"resolution"`
	Thickness   float32 `toml:"thickness"`
	Steps       uint32  `toml:"steps"`
}

type TAASettings struct {
	Enabled            bool               `toml:"enabled"`
	ResolveWeight      float32            `toml:"resolve_weight"`
	UseMotionVectors   bool               `toml:"use_motion_vectors"`
	FlickerCorrection  FlickerCorrection  `toml:"flicker_correction"`
	ReprojectionFilter ReprojectionFilter `toml:"reprojection_filter"`
	JitterMode         jitter.Mode        `toml:"jitter_mode"`
}

type TonemapSettings struct {
	Mode     TonemapMode `toml:"mode"`
	Exposure float32     `toml:"exposure"`
}

type DebugSettings struct {
	View DebugView `toml:"view"`
}

type UISettings struct {
	Enabled bool   `toml:"enabled"`
	Font    string `toml:"font"`
}

type LogSettings struct {
	Level string `toml:"level"`
}

// Settings seeds every runtime toggle of the renderer. Nothing is persisted back.
type Settings struct {
	Renderer RendererSettings `toml:"renderer"`
	Shadow   ShadowSettings   `toml:"shadow"`
	SSAO     SSAOSettings     `toml:"ssao"`
	SSR      SSRSettings      `toml:"ssr"`
	TAA      TAASettings      `toml:"taa"`
	Tonemap  TonemapSettings  `toml:"tonemap"`
	Debug    DebugSettings    `toml:"debug"`
	UI       UISettings       `toml:"ui"`
	Log      LogSettings      `toml:"log"`
}

func Defaults() Settings {
	return Settings{
		Renderer: RendererSettings{
			Mode:        RendererModeDeferred,
			Width:       1280,
			Height:      720,
			RenderScale: 1,
		},
		Shadow: ShadowSettings{
			Enabled:        true,
			PCF:            true,
			TemporalWeight: 0.9,
			MapSize:        2048,
		},
		SSAO: SSAOSettings{
			Enabled:    true,
			Bias:       0.025,
			KernelSize: 64,
			Radius:     0.5,
		},
		SSR: SSRSettings{
			Enabled:     true,
			MaxDistance: 15,
			Resolution:  0.3,
			Thickness:   0.5,
			Steps:       16,
		},
		TAA: TAASettings{
			Enabled:            true,
			ResolveWeight:      0.9,
			UseMotionVectors:   true,
			FlickerCorrection:  FlickerCorrectionLogWeighing,
			ReprojectionFilter: ReprojectionFilterCatmullRom,
			JitterMode:         jitter.ModeHammersley8x,
		},
		Tonemap: TonemapSettings{
			Mode:     TonemapReinhard,
			Exposure: 1,
		},
		Debug: DebugSettings{View: DebugViewDefault},
		UI:    UISettings{Enabled: true},
		Log:   LogSettings{Level: "info"},
	}
}

// RenderExtent is the display size scaled by the render scale.
func (s Settings) RenderExtent() (uint32, uint32) {
	w := uint32(float32(s.Renderer.Width) * s.Renderer.RenderScale)
	h := uint32(float32(s.Renderer.Height) * s.Renderer.RenderScale)
	return max(w, 1), max(h, 1)
}

func clampField[T float32 | uint32](name string, v *T, low, high T) {
	c := math.Clamp(*v, low, high)
	if c != *v {
		core.LogWarn("config value %s=%v out of range [%v, %v], clamped to %v", name, *v, low, high, c)
		*v = c
	}
}

// Clamp brings every ranged value back into its valid interval.
func (s *Settings) Clamp() {
	clampField("renderer.width", &s.Renderer.Width, 1, 16384)
	clampField("renderer.height", &s.Renderer.Height, 1, 16384)
	clampField("renderer.render_scale", &s.Renderer.RenderScale, 0.25, 1)

	clampField("shadow.temporal_weight", &s.Shadow.TemporalWeight, 0, 1)
	clampField("shadow.map_size", &s.Shadow.MapSize, 256, 8192)

	clampField("ssao.bias", &s.SSAO.Bias, 0, 0.1)
	clampField("ssao.kernel_size", &s.SSAO.KernelSize, 1, 64)
	clampField("ssao.radius", &s.SSAO.Radius, 0.01, 10)

	clampField("ssr.max_distance", &s.SSR.MaxDistance, 0, 50)
	clampField("ssr.resolution", &s.SSR.Resolution, 0, 1)
	clampField("ssr.thickness", &s.SSR.Thickness, 0, 5)
	clampField("ssr.steps", &s.SSR.Steps, 1, 256)

	clampField("taa.resolve_weight", &s.TAA.ResolveWeight, 0, 1)

	clampField("tonemap.exposure", &s.Tonemap.Exposure, 0.1, 5)
}
