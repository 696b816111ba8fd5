package voice

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// SampleSource is a MediaSource backed by a static Opus sample track.
// The capture layer feeds it encoded frames through WriteSample; codec
// and capture internals stay outside the signaling layer.
type SampleSource struct {
	track *webrtc.TrackLocalStaticSample
}

func NewSampleSource() (*SampleSource, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "policevsthieves",
	)
	if err != nil {
		return nil, fmt.Errorf("creating local audio track: %w", err)
	}
	return &SampleSource{track: track}, nil
}

func (s *SampleSource) AudioTrack() (webrtc.TrackLocal, error) {
	return s.track, nil
}

// WriteSample pushes one encoded audio frame into the outbound track.
func (s *SampleSource) WriteSample(sample media.Sample) error {
	return s.track.WriteSample(sample)
}

func (s *SampleSource) Close() error { return nil }
