package ortc

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

func (k MediaKind) Valid() bool {
	return k == MediaKindAudio || k == MediaKindVideo
}

// CodecType maps the kind onto pion's codec type enumeration.
func (k MediaKind) CodecType() webrtc.RTPCodecType {
	switch k {
	case MediaKindAudio:
		return webrtc.RTPCodecTypeAudio
	case MediaKindVideo:
		return webrtc.RTPCodecTypeVideo
	default:
		return webrtc.RTPCodecTypeUnknown
	}
}

// RtpCapabilities is the set of codecs and header extensions a router can receive.
type RtpCapabilities struct {
	Codecs           []*RtpCodecCapability `json:"codecs,omitempty"`
	HeaderExtensions []*RtpHeaderExtension `json:"headerExtensions,omitempty"`
}

type RtpCodecCapability struct {
	Kind                 MediaKind                  `json:"kind"`
	MimeType             string                     `json:"mimeType"`
	PreferredPayloadType uint8                      `json:"preferredPayloadType,omitempty"`
	ClockRate            uint32                     `json:"clockRate"`
	Channels             uint8                      `json:"channels,omitempty"`
	Parameters           RtpCodecSpecificParameters `json:"parameters,omitempty"`
	RtcpFeedback         []RtcpFeedback             `json:"rtcpFeedback,omitempty"`
}

func (c *RtpCodecCapability) isRtx() bool {
	return isRtxMimeType(c.MimeType)
}

type MediaDirection string

const (
	MediaDirectionSendrecv MediaDirection = "sendrecv"
	MediaDirectionSendonly MediaDirection = "sendonly"
	MediaDirectionRecvonly MediaDirection = "recvonly"
	MediaDirectionInactive MediaDirection = "inactive"
)

type RtpHeaderExtension struct {
	Kind        MediaKind      `json:"kind"`
	URI         string         `json:"uri"`
	PreferredID uint8          `json:"preferredId"`
	Direction   MediaDirection `json:"direction,omitempty"`
}

// RtpParameters describe a media stream as sent to (or received from) the engine.
type RtpParameters struct {
	Mid              string                          `json:"mid,omitempty"`
	Codecs           []*RtpCodecParameters           `json:"codecs"`
	HeaderExtensions []*RtpHeaderExtensionParameters `json:"headerExtensions,omitempty"`
	Encodings        []*RtpEncodingParameters        `json:"encodings,omitempty"`
	Rtcp             *RtcpParameters                 `json:"rtcp,omitempty"`
}

// Clone returns a deep copy so callers can keep mutating their own value.
func (p *RtpParameters) Clone() *RtpParameters {
	if p == nil {
		return nil
	}
	out := &RtpParameters{Mid: p.Mid}
	for _, c := range p.Codecs {
		cc := *c
		cc.RtcpFeedback = append([]RtcpFeedback(nil), c.RtcpFeedback...)
		out.Codecs = append(out.Codecs, &cc)
	}
	for _, h := range p.HeaderExtensions {
		hh := *h
		out.HeaderExtensions = append(out.HeaderExtensions, &hh)
	}
	for _, e := range p.Encodings {
		ee := *e
		if e.CodecPayloadType != nil {
			pt := *e.CodecPayloadType
			ee.CodecPayloadType = &pt
		}
		if e.Rtx != nil {
			rtx := *e.Rtx
			ee.Rtx = &rtx
		}
		out.Encodings = append(out.Encodings, &ee)
	}
	if p.Rtcp != nil {
		rtcp := *p.Rtcp
		out.Rtcp = &rtcp
	}
	return out
}

type RtpCodecParameters struct {
	MimeType     string                     `json:"mimeType"`
	PayloadType  uint8                      `json:"payloadType"`
	ClockRate    uint32                     `json:"clockRate"`
	Channels     uint8                      `json:"channels,omitempty"`
	Parameters   RtpCodecSpecificParameters `json:"parameters,omitempty"`
	RtcpFeedback []RtcpFeedback             `json:"rtcpFeedback,omitempty"`
}

func (c *RtpCodecParameters) isRtx() bool {
	return isRtxMimeType(c.MimeType)
}

// RtpCodecSpecificParameters carries only the fmtp keys that take part in codec matching.
type RtpCodecSpecificParameters struct {
	PacketizationMode     uint8  `json:"packetization-mode,omitempty"`
	ProfileLevelID        string `json:"profile-level-id,omitempty"`
	LevelAsymmetryAllowed uint8  `json:"level-asymmetry-allowed,omitempty"`
	ProfileID             string `json:"profile-id,omitempty"`
	Apt                   uint8  `json:"apt,omitempty"`
	Useinbandfec          uint8  `json:"useinbandfec,omitempty"`
	Usedtx                uint8  `json:"usedtx,omitempty"`
}

type RtcpFeedback struct {
	Type      string `json:"type"`
	Parameter string `json:"parameter,omitempty"`
}

type RtpEncodingParameters struct {
	Ssrc             uint32          `json:"ssrc,omitempty"`
	Rid              string          `json:"rid,omitempty"`
	CodecPayloadType *uint8          `json:"codecPayloadType,omitempty"`
	Rtx              *RtpEncodingRtx `json:"rtx,omitempty"`
	Dtx              bool            `json:"dtx,omitempty"`
	ScalabilityMode  string          `json:"scalabilityMode,omitempty"`
	MaxBitrate       uint32          `json:"maxBitrate,omitempty"`
}

type RtpEncodingRtx struct {
	Ssrc uint32 `json:"ssrc"`
}

type RtpHeaderExtensionParameters struct {
	URI     string `json:"uri"`
	ID      uint8  `json:"id"`
	Encrypt bool   `json:"encrypt,omitempty"`
}

type RtcpParameters struct {
	Cname       string `json:"cname,omitempty"`
	ReducedSize bool   `json:"reducedSize"`
}

// RtpMapping translates a producer's payload types and SSRCs into the router's space.
type RtpMapping struct {
	Codecs    []RtpMappingCodec    `json:"codecs"`
	Encodings []RtpMappingEncoding `json:"encodings"`
}

type RtpMappingCodec struct {
	PayloadType       uint8 `json:"payloadType"`
	MappedPayloadType uint8 `json:"mappedPayloadType"`
}

type RtpMappingEncoding struct {
	Ssrc            uint32 `json:"ssrc,omitempty"`
	Rid             string `json:"rid,omitempty"`
	ScalabilityMode string `json:"scalabilityMode,omitempty"`
	MappedSsrc      uint32 `json:"mappedSsrc"`
}

func isRtxMimeType(mimeType string) bool {
	return strings.HasSuffix(strings.ToLower(mimeType), "/rtx")
}

func kindOfMimeType(mimeType string) MediaKind {
	kind, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	return MediaKind(kind)
}
