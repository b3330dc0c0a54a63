package ortc

import (
	"errors"
	"testing"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouterCaps(t *testing.T) *RtpCapabilities {
	t.Helper()
	caps, err := GenerateRouterRtpCapabilities(DefaultMediaCodecs())
	require.NoError(t, err)
	return caps
}

func vp8Params() *RtpParameters {
	return &RtpParameters{
		Mid: "video",
		Codecs: []*RtpCodecParameters{
			{MimeType: "video/VP8", PayloadType: 96, ClockRate: 90000},
			{MimeType: "video/rtx", PayloadType: 97, ClockRate: 90000, Parameters: RtpCodecSpecificParameters{Apt: 96}},
		},
		HeaderExtensions: []*RtpHeaderExtensionParameters{
			{URI: sdp.SDESMidURI, ID: 1},
		},
		Encodings: []*RtpEncodingParameters{
			{Ssrc: 1111, Rtx: &RtpEncodingRtx{Ssrc: 2222}},
		},
		Rtcp: &RtcpParameters{Cname: "cname-1", ReducedSize: true},
	}
}

func TestGenerateRouterRtpCapabilities_AddsRtxForVideo(t *testing.T) {
	caps := newRouterCaps(t)

	// VP8, rtx, H264, rtx, VP9, rtx, opus
	require.Len(t, caps.Codecs, 7)
	assert.Equal(t, webrtc.MimeTypeVP8, caps.Codecs[0].MimeType)
	assert.Equal(t, uint8(100), caps.Codecs[0].PreferredPayloadType)
	assert.Equal(t, "video/rtx", caps.Codecs[1].MimeType)
	assert.Equal(t, uint8(100), caps.Codecs[1].Parameters.Apt)
	assert.Equal(t, webrtc.MimeTypeOpus, caps.Codecs[6].MimeType)
	assert.NotEmpty(t, caps.HeaderExtensions)

	seen := map[uint8]bool{}
	for _, c := range caps.Codecs {
		assert.False(t, seen[c.PreferredPayloadType], "duplicated payload type %d", c.PreferredPayloadType)
		seen[c.PreferredPayloadType] = true
	}
}

func TestGenerateRouterRtpCapabilities_RejectsRtx(t *testing.T) {
	_, err := GenerateRouterRtpCapabilities([]*RtpCodecCapability{
		{Kind: MediaKindVideo, MimeType: "video/rtx", ClockRate: 90000},
	})
	assert.True(t, errors.Is(err, ErrInvalidRtpCapabilities))
}

func TestGenerateRouterRtpCapabilities_RejectsEmpty(t *testing.T) {
	_, err := GenerateRouterRtpCapabilities(nil)
	assert.True(t, errors.Is(err, ErrInvalidRtpCapabilities))
}

func TestMediaCodecsByMimeType(t *testing.T) {
	codecs, err := MediaCodecsByMimeType([]string{"video/h264", " audio/opus "})
	require.NoError(t, err)
	require.Len(t, codecs, 2)
	assert.Equal(t, webrtc.MimeTypeH264, codecs[0].MimeType)

	_, err = MediaCodecsByMimeType([]string{"video/theora"})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestValidateRtpParameters(t *testing.T) {
	pt := uint8(42)
	tests := []struct {
		name   string
		mutate func(p *RtpParameters)
		ok     bool
	}{
		{name: "valid", mutate: func(p *RtpParameters) {}, ok: true},
		{name: "no codecs", mutate: func(p *RtpParameters) { p.Codecs = nil }},
		{name: "bad mime", mutate: func(p *RtpParameters) { p.Codecs[0].MimeType = "vp8" }},
		{name: "no clock rate", mutate: func(p *RtpParameters) { p.Codecs[0].ClockRate = 0 }},
		{name: "duplicated payload type", mutate: func(p *RtpParameters) { p.Codecs[1].PayloadType = 96 }},
		{name: "rtx without apt", mutate: func(p *RtpParameters) { p.Codecs[1].Parameters.Apt = 50 }},
		{name: "rtx first", mutate: func(p *RtpParameters) { p.Codecs[0], p.Codecs[1] = p.Codecs[1], p.Codecs[0] }},
		{name: "header extension id", mutate: func(p *RtpParameters) { p.HeaderExtensions[0].ID = 0 }},
		{name: "unknown encoding payload type", mutate: func(p *RtpParameters) { p.Encodings[0].CodecPayloadType = &pt }},
		{name: "simulcast without ssrc", mutate: func(p *RtpParameters) {
			p.Encodings = []*RtpEncodingParameters{{Rid: "h"}, {}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := vp8Params()
			tt.mutate(p)
			err := ValidateRtpParameters(p)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRtpParameters)
		})
	}
}

func TestGetProducerRtpParametersMapping(t *testing.T) {
	caps := newRouterCaps(t)

	mapping, err := GetProducerRtpParametersMapping(vp8Params(), caps)
	require.NoError(t, err)

	require.Len(t, mapping.Codecs, 2)
	assert.Equal(t, RtpMappingCodec{PayloadType: 96, MappedPayloadType: 100}, mapping.Codecs[0])
	assert.Equal(t, RtpMappingCodec{PayloadType: 97, MappedPayloadType: 101}, mapping.Codecs[1])

	require.Len(t, mapping.Encodings, 1)
	assert.Equal(t, uint32(1111), mapping.Encodings[0].Ssrc)
	assert.GreaterOrEqual(t, mapping.Encodings[0].MappedSsrc, uint32(minMappedSsrc))
	assert.LessOrEqual(t, mapping.Encodings[0].MappedSsrc, uint32(maxMappedSsrc))
}

func TestGetProducerRtpParametersMapping_UnsupportedCodec(t *testing.T) {
	caps, err := GenerateRouterRtpCapabilities([]*RtpCodecCapability{
		{Kind: MediaKindAudio, MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	})
	require.NoError(t, err)

	_, err = GetProducerRtpParametersMapping(vp8Params(), caps)
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestGetProducerRtpParametersMapping_H264ProfileMustMatch(t *testing.T) {
	caps := newRouterCaps(t)
	params := &RtpParameters{
		Codecs: []*RtpCodecParameters{{
			MimeType:    "video/H264",
			PayloadType: 102,
			ClockRate:   90000,
			Parameters:  RtpCodecSpecificParameters{PacketizationMode: 1, ProfileLevelID: "640032"},
		}},
		Encodings: []*RtpEncodingParameters{{Ssrc: 1}},
	}
	_, err := GetProducerRtpParametersMapping(params, caps)
	assert.ErrorIs(t, err, ErrUnsupportedCodec)

	params.Codecs[0].Parameters.ProfileLevelID = "42e01f"
	mapping, err := GetProducerRtpParametersMapping(params, caps)
	require.NoError(t, err)
	assert.Equal(t, uint8(102), mapping.Codecs[0].MappedPayloadType)
}

func TestNegotiationIsDeterministic(t *testing.T) {
	caps := newRouterCaps(t)
	params := vp8Params()

	first, err := GetProducerRtpParametersMapping(params, caps)
	require.NoError(t, err)
	second, err := GetProducerRtpParametersMapping(params, caps)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	c1 := GetConsumableRtpParameters(MediaKindVideo, params, caps, first)
	c2 := GetConsumableRtpParameters(MediaKindVideo, params, caps, second)
	assert.Equal(t, c1, c2)
}

func TestGetConsumableRtpParameters(t *testing.T) {
	caps := newRouterCaps(t)
	params := vp8Params()
	mapping, err := GetProducerRtpParametersMapping(params, caps)
	require.NoError(t, err)

	consumable := GetConsumableRtpParameters(MediaKindVideo, params, caps, mapping)

	require.Len(t, consumable.Codecs, 2)
	assert.Equal(t, uint8(100), consumable.Codecs[0].PayloadType)
	assert.NotEmpty(t, consumable.Codecs[0].RtcpFeedback)
	assert.Equal(t, "video/rtx", consumable.Codecs[1].MimeType)
	assert.Equal(t, uint8(100), consumable.Codecs[1].Parameters.Apt)

	require.Len(t, consumable.Encodings, 1)
	assert.Equal(t, mapping.Encodings[0].MappedSsrc, consumable.Encodings[0].Ssrc)
	assert.Nil(t, consumable.Encodings[0].Rtx)

	for _, ext := range consumable.HeaderExtensions {
		assert.NotEqual(t, sdp.AudioLevelURI, ext.URI)
		assert.NotEqual(t, sdp.SDESRTPStreamIDURI, ext.URI)
	}
	assert.Equal(t, "cname-1", consumable.Rtcp.Cname)
	assert.True(t, consumable.Rtcp.ReducedSize)
}

func TestNewOutputRtpParameters(t *testing.T) {
	caps := newRouterCaps(t)

	params, err := NewOutputRtpParameters(caps, "video/vp8", "mixer-1")
	require.NoError(t, err)
	require.NoError(t, ValidateRtpParameters(params))
	require.Len(t, params.Codecs, 2)
	assert.Equal(t, params.Encodings[0].Ssrc+1, params.Encodings[0].Rtx.Ssrc)

	again, err := NewOutputRtpParameters(caps, "video/VP8", "mixer-1")
	require.NoError(t, err)
	assert.Equal(t, params, again)

	_, err = NewOutputRtpParameters(caps, "video/AV1", "mixer-1")
	assert.ErrorIs(t, err, ErrUnsupportedCodec)
}

func TestRtpParametersClone(t *testing.T) {
	params := vp8Params()
	clone := params.Clone()
	clone.Codecs[0].PayloadType = 120
	clone.Encodings[0].Rtx.Ssrc = 9
	clone.Rtcp.Cname = "other"

	assert.Equal(t, uint8(96), params.Codecs[0].PayloadType)
	assert.Equal(t, uint32(2222), params.Encodings[0].Rtx.Ssrc)
	assert.Equal(t, "cname-1", params.Rtcp.Cname)
}

func TestMediaKind(t *testing.T) {
	assert.True(t, MediaKindVideo.Valid())
	assert.False(t, MediaKind("data").Valid())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, MediaKindVideo.CodecType())
	assert.Equal(t, webrtc.RTPCodecTypeUnknown, MediaKind("data").CodecType())
}
