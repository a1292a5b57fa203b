package contracts

// CaptureStatus carries stream health flags reported with a block of samples.
type CaptureStatus uint8

const (
	// CaptureUnderrun means the device delivered fewer samples than expected.
	CaptureUnderrun CaptureStatus = 1 << iota
	// CaptureOverrun means samples were lost because the consumer fell behind.
	CaptureOverrun
)

// Dropped reports whether the block must be discarded.
func (s CaptureStatus) Dropped() bool {
	return s&(CaptureUnderrun|CaptureOverrun) != 0
}

// ChunkHandler receives each captured block of mono samples. The slice is only valid
// for the duration of the call.
type ChunkHandler func(samples []float32, status CaptureStatus)

// CaptureStream is an opened audio input stream.
type CaptureStream interface {
	Start() error
	Stop() error
	Close() error
}

// AudioCapture enumerates and opens audio input devices.
type AudioCapture interface {
	ListInputs() ([]DeviceInfo, error)
	OpenInput(stableKey string, sampleRate, chunkSize int, handler ChunkHandler) (CaptureStream, error)
	Close() error
}
