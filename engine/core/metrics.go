package core

const AVG_COUNT uint8 = 30

// Metrics keeps a rolling frame-time average and a frames-per-second counter.
type Metrics struct {
	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAVG              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
	total              uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// Update records the duration of one frame, in seconds.
func (m *Metrics) Update(frameElapsedTime float64) {
	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAVG = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.msAVG += m.msTimes[i]
		}
		m.msAVG /= float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	m.frames++
	m.total++
}

func (m *Metrics) FPS() float64 {
	return m.fps
}

// FrameTime is the average frame time in milliseconds over the last AVG_COUNT frames.
func (m *Metrics) FrameTime() float64 {
	return m.msAVG
}

func (m *Metrics) Frames() uint64 {
	return m.total
}
