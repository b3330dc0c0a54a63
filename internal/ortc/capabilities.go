package ortc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

var errNoPayloadTypes = errors.New("no more dynamic payload types available")

var dynamicPayloadTypes = func() []uint8 {
	pts := make([]uint8, 0, 32)
	for pt := uint8(100); pt <= 127; pt++ {
		pts = append(pts, pt)
	}
	for pt := uint8(96); pt < 100; pt++ {
		pts = append(pts, pt)
	}
	return pts
}()

var videoFeedback = []RtcpFeedback{
	{Type: "nack"},
	{Type: "nack", Parameter: "pli"},
	{Type: "ccm", Parameter: "fir"},
	{Type: "goog-remb"},
	{Type: "transport-cc"},
}

var audioFeedback = []RtcpFeedback{
	{Type: "transport-cc"},
}

var supportedHeaderExtensions = []RtpHeaderExtension{
	{Kind: MediaKindAudio, URI: sdp.SDESMidURI, PreferredID: 1, Direction: MediaDirectionSendrecv},
	{Kind: MediaKindVideo, URI: sdp.SDESMidURI, PreferredID: 1, Direction: MediaDirectionSendrecv},
	{Kind: MediaKindVideo, URI: sdp.SDESRTPStreamIDURI, PreferredID: 2, Direction: MediaDirectionRecvonly},
	{Kind: MediaKindAudio, URI: sdp.ABSSendTimeURI, PreferredID: 4, Direction: MediaDirectionSendrecv},
	{Kind: MediaKindVideo, URI: sdp.ABSSendTimeURI, PreferredID: 4, Direction: MediaDirectionSendrecv},
	{Kind: MediaKindVideo, URI: sdp.TransportCCURI, PreferredID: 5, Direction: MediaDirectionSendrecv},
	{Kind: MediaKindAudio, URI: sdp.AudioLevelURI, PreferredID: 10, Direction: MediaDirectionSendrecv},
}

// DefaultMediaCodecs lists the codecs a router advertises when nothing else is configured.
func DefaultMediaCodecs() []*RtpCodecCapability {
	return []*RtpCodecCapability{
		{Kind: MediaKindVideo, MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		{
			Kind:      MediaKindVideo,
			MimeType:  webrtc.MimeTypeH264,
			ClockRate: 90000,
			Parameters: RtpCodecSpecificParameters{
				PacketizationMode:     1,
				ProfileLevelID:        "42e01f",
				LevelAsymmetryAllowed: 1,
			},
		},
		{Kind: MediaKindVideo, MimeType: webrtc.MimeTypeVP9, ClockRate: 90000, Parameters: RtpCodecSpecificParameters{ProfileID: "0"}},
		{Kind: MediaKindAudio, MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	}
}

// MediaCodecsByMimeType picks entries of DefaultMediaCodecs by MIME type, keeping the given order.
func MediaCodecsByMimeType(mimeTypes []string) ([]*RtpCodecCapability, error) {
	known := DefaultMediaCodecs()
	out := make([]*RtpCodecCapability, 0, len(mimeTypes))
	for _, mt := range mimeTypes {
		mt = strings.TrimSpace(mt)
		if mt == "" {
			continue
		}
		var found *RtpCodecCapability
		for _, c := range known {
			if strings.EqualFold(c.MimeType, mt) {
				found = c
				break
			}
		}
		if found == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mt)
		}
		out = append(out, found)
	}
	return out, nil
}

// GenerateRouterRtpCapabilities assigns payload types to the given media
// codecs and adds an RTX companion to every video codec.
func GenerateRouterRtpCapabilities(mediaCodecs []*RtpCodecCapability) (*RtpCapabilities, error) {
	if len(mediaCodecs) == 0 {
		return nil, fmt.Errorf("%w: no media codecs", ErrInvalidRtpCapabilities)
	}
	used := make(map[uint8]struct{})
	for _, c := range mediaCodecs {
		if c.PreferredPayloadType != 0 {
			used[c.PreferredPayloadType] = struct{}{}
		}
	}
	next := func() (uint8, error) {
		for _, pt := range dynamicPayloadTypes {
			if _, taken := used[pt]; !taken {
				used[pt] = struct{}{}
				return pt, nil
			}
		}
		return 0, errNoPayloadTypes
	}

	caps := &RtpCapabilities{}
	for _, mediaCodec := range mediaCodecs {
		if mediaCodec.isRtx() {
			return nil, fmt.Errorf("%w: rtx codecs are generated, not configured", ErrInvalidRtpCapabilities)
		}
		codec := *mediaCodec
		if codec.Kind == "" {
			codec.Kind = kindOfMimeType(codec.MimeType)
		}
		if codec.PreferredPayloadType == 0 {
			pt, err := next()
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrInvalidRtpCapabilities, err)
			}
			codec.PreferredPayloadType = pt
		}
		if len(codec.RtcpFeedback) == 0 {
			codec.RtcpFeedback = defaultFeedback(codec.Kind)
		}
		caps.Codecs = append(caps.Codecs, &codec)

		if codec.Kind != MediaKindVideo {
			continue
		}
		pt, err := next()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRtpCapabilities, err)
		}
		caps.Codecs = append(caps.Codecs, &RtpCodecCapability{
			Kind:                 MediaKindVideo,
			MimeType:             "video/rtx",
			PreferredPayloadType: pt,
			ClockRate:            codec.ClockRate,
			Parameters:           RtpCodecSpecificParameters{Apt: codec.PreferredPayloadType},
		})
	}

	for _, ext := range supportedHeaderExtensions {
		ext := ext
		caps.HeaderExtensions = append(caps.HeaderExtensions, &ext)
	}
	if err := ValidateRtpCapabilities(caps); err != nil {
		return nil, err
	}
	return caps, nil
}

// NewOutputRtpParameters builds the parameter set of a mixer's output track
// using the router codec of the given MIME type. The SSRC is derived from cname.
func NewOutputRtpParameters(caps *RtpCapabilities, mimeType, cname string) (*RtpParameters, error) {
	var media *RtpCodecCapability
	for _, c := range caps.Codecs {
		if !c.isRtx() && strings.EqualFold(c.MimeType, mimeType) {
			media = c
			break
		}
	}
	if media == nil {
		return nil, fmt.Errorf("%w: router does not support %s", ErrUnsupportedCodec, mimeType)
	}

	params := &RtpParameters{
		Mid: "0",
		Codecs: []*RtpCodecParameters{{
			MimeType:     media.MimeType,
			PayloadType:  media.PreferredPayloadType,
			ClockRate:    media.ClockRate,
			Channels:     media.Channels,
			Parameters:   media.Parameters,
			RtcpFeedback: append([]RtcpFeedback(nil), media.RtcpFeedback...),
		}},
		Encodings: []*RtpEncodingParameters{{Ssrc: ssrcFromSeed(cname)}},
		Rtcp:      &RtcpParameters{Cname: cname, ReducedSize: true},
	}
	for _, c := range caps.Codecs {
		if c.isRtx() && c.Parameters.Apt == media.PreferredPayloadType {
			params.Codecs = append(params.Codecs, &RtpCodecParameters{
				MimeType:    c.MimeType,
				PayloadType: c.PreferredPayloadType,
				ClockRate:   c.ClockRate,
				Parameters:  c.Parameters,
			})
			params.Encodings[0].Rtx = &RtpEncodingRtx{Ssrc: params.Encodings[0].Ssrc + 1}
			break
		}
	}
	for _, ext := range caps.HeaderExtensions {
		if ext.Kind == media.Kind && ext.Direction == MediaDirectionSendrecv {
			params.HeaderExtensions = append(params.HeaderExtensions, &RtpHeaderExtensionParameters{
				URI: ext.URI,
				ID:  ext.PreferredID,
			})
		}
	}
	return params, nil
}

func defaultFeedback(kind MediaKind) []RtcpFeedback {
	if kind == MediaKindVideo {
		return append([]RtcpFeedback(nil), videoFeedback...)
	}
	return append([]RtcpFeedback(nil), audioFeedback...)
}

func ssrcFromSeed(seed string) uint32 {
	return uint32(minMappedSsrc + xxhash.Sum64String(seed)%uint64(maxMappedSsrc-minMappedSsrc))
}
