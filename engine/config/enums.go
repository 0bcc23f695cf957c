package config

import (
	"fmt"
	"strings"
)

// enumText is shared by the TextMarshaler implementations of the settings enums.
func enumText[T ~int](names []string, v T) ([]byte, error) {
	if int(v) < 0 || int(v) >= len(names) {
		return nil, fmt.Errorf("invalid enum value %d", int(v))
	}
	return []byte(names[v]), nil
}

func enumParse[T ~int](kind string, names []string, text []byte, out *T) error {
	s := strings.TrimSpace(string(text))
	for i, n := range names {
		if strings.EqualFold(n, s) {
			*out = T(i)
			return nil
		}
	}
	return fmt.Errorf("unknown %s %q, expected one of %s", kind, s, strings.Join(names, ", "))
}

type RendererMode int

const (
	RendererModeForward RendererMode = iota
	RendererModeDeferred
)

var rendererModeNames = []string{"Forward", "Deferred"}

func (m RendererMode) String() string {
	return rendererModeNames[m]
}

func (m RendererMode) MarshalText() ([]byte, error) {
	return enumText(rendererModeNames, m)
}

func (m *RendererMode) UnmarshalText(b []byte) error {
	return enumParse("renderer mode", rendererModeNames, b, m)
}

type FlickerCorrection int

const (
	FlickerCorrectionNone FlickerCorrection = iota
	FlickerCorrectionLogWeighing
	FlickerCorrectionLuminanceWeighing
)

var flickerNames = []string{"None", "LogWeighing", "LuminanceWeighing"}

func (f FlickerCorrection) String() string {
	return flickerNames[f]
}

func (f FlickerCorrection) MarshalText() ([]byte, error) {
	return enumText(flickerNames, f)
}

func (f *FlickerCorrection) UnmarshalText(b []byte) error {
	return enumParse("flicker correction", flickerNames, b, f)
}

type ReprojectionFilter int

const (
	ReprojectionFilterStandard ReprojectionFilter = iota
	ReprojectionFilterCatmullRom
)

var reprojectionFilterNames = []string{"Standard", "CatmullRom"}

func (r ReprojectionFilter) String() string {
	return reprojectionFilterNames[r]
}

func (r ReprojectionFilter) MarshalText() ([]byte, error) {
	return enumText(reprojectionFilterNames, r)
}

func (r *ReprojectionFilter) UnmarshalText(b []byte) error {
	return enumParse("reprojection filter", reprojectionFilterNames, b, r)
}

type TonemapMode int

const (
	TonemapNone TonemapMode = iota
	TonemapReinhard
	TonemapAMD
)

var tonemapNames = []string{"None", "Reinhard", "AMD"}

func (t TonemapMode) String() string {
	return tonemapNames[t]
}

func (t TonemapMode) MarshalText() ([]byte, error) {
	return enumText(tonemapNames, t)
}

func (t *TonemapMode) UnmarshalText(b []byte) error {
	return enumParse("tonemap mode", tonemapNames, b, t)
}

// DebugView selects what the debug overlay draws on top of the frame.
type DebugView int

const (
	DebugViewDefault DebugView = iota
	DebugViewLighting
	DebugViewNormals
	DebugViewAO
	DebugViewMotion
	DebugViewDepth
)

var debugViewNames = []string{"Default", "Lighting", "Normals", "AO", "Motion", "Depth"}

func (d DebugView) String() string {
	return debugViewNames[d]
}

func (d DebugView) MarshalText() ([]byte, error) {
	return enumText(debugViewNames, d)
}

func (d *DebugView) UnmarshalText(b []byte) error {
	return enumParse("debug view", debugViewNames, b, d)
}
