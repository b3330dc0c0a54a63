package ortc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const (
	minMappedSsrc = 100000000
	maxMappedSsrc = 999999999
)

// GetProducerRtpParametersMapping matches every media codec of params against
// the router capabilities and assigns router-side SSRCs to each encoding.
// The result only depends on its inputs.
func GetProducerRtpParametersMapping(params *RtpParameters, caps *RtpCapabilities) (*RtpMapping, error) {
	if caps == nil {
		return nil, fmt.Errorf("%w: router has no capabilities", ErrUnsupportedCodec)
	}
	matched := make(map[*RtpCodecParameters]*RtpCodecCapability, len(params.Codecs))

	for _, codec := range params.Codecs {
		if codec.isRtx() {
			continue
		}
		capCodec := findMatchingCapability(codec, caps)
		if capCodec == nil {
			return nil, fmt.Errorf("%w: %s (payload type %d)", ErrUnsupportedCodec, codec.MimeType, codec.PayloadType)
		}
		matched[codec] = capCodec
	}

	for _, codec := range params.Codecs {
		if !codec.isRtx() {
			continue
		}
		associated := findCodecByPayloadType(params.Codecs, codec.Parameters.Apt)
		if associated == nil {
			return nil, fmt.Errorf("%w: rtx codec %d has no associated media codec", ErrUnsupportedCodec, codec.PayloadType)
		}
		capMedia, ok := matched[associated]
		if !ok {
			continue
		}
		for _, capCodec := range caps.Codecs {
			if capCodec.isRtx() && capCodec.Parameters.Apt == capMedia.PreferredPayloadType {
				matched[codec] = capCodec
				break
			}
		}
	}

	mapping := &RtpMapping{
		Codecs:    make([]RtpMappingCodec, 0, len(matched)),
		Encodings: make([]RtpMappingEncoding, 0, len(params.Encodings)),
	}
	for _, codec := range params.Codecs {
		capCodec, ok := matched[codec]
		if !ok {
			continue
		}
		mapping.Codecs = append(mapping.Codecs, RtpMappingCodec{
			PayloadType:       codec.PayloadType,
			MappedPayloadType: capCodec.PreferredPayloadType,
		})
	}

	base := mappedSsrcBase(params)
	for i, enc := range params.Encodings {
		mapping.Encodings = append(mapping.Encodings, RtpMappingEncoding{
			Ssrc:            enc.Ssrc,
			Rid:             enc.Rid,
			ScalabilityMode: enc.ScalabilityMode,
			MappedSsrc:      base + uint32(i),
		})
	}
	return mapping, nil
}

func findMatchingCapability(codec *RtpCodecParameters, caps *RtpCapabilities) *RtpCodecCapability {
	for _, capCodec := range caps.Codecs {
		if capCodec.isRtx() {
			continue
		}
		if matchCodecs(codec, capCodec) {
			return capCodec
		}
	}
	return nil
}

func findCodecByPayloadType(codecs []*RtpCodecParameters, payloadType uint8) *RtpCodecParameters {
	for _, c := range codecs {
		if c.PayloadType == payloadType {
			return c
		}
	}
	return nil
}

func matchCodecs(codec *RtpCodecParameters, capCodec *RtpCodecCapability) bool {
	mimeType := strings.ToLower(codec.MimeType)
	if mimeType != strings.ToLower(capCodec.MimeType) {
		return false
	}
	if codec.ClockRate != capCodec.ClockRate {
		return false
	}
	if kindOfMimeType(mimeType) == MediaKindAudio && channelsOrDefault(codec.Channels) != channelsOrDefault(capCodec.Channels) {
		return false
	}

	switch mimeType {
	case "video/h264":
		if codec.Parameters.PacketizationMode != capCodec.Parameters.PacketizationMode {
			return false
		}
		return h264ProfileOf(codec.Parameters.ProfileLevelID) == h264ProfileOf(capCodec.Parameters.ProfileLevelID)
	case "video/vp9":
		return profileIDOrDefault(codec.Parameters.ProfileID) == profileIDOrDefault(capCodec.Parameters.ProfileID)
	}
	return true
}

func channelsOrDefault(channels uint8) uint8 {
	if channels == 0 {
		return 1
	}
	return channels
}

func profileIDOrDefault(id string) string {
	if id == "" {
		return "0"
	}
	return id
}

// h264ProfileOf returns the profile_idc byte of a profile-level-id. A missing
// value means constrained baseline (42).
func h264ProfileOf(profileLevelID string) string {
	if len(profileLevelID) < 2 {
		return "42"
	}
	return strings.ToLower(profileLevelID[:2])
}

func mappedSsrcBase(params *RtpParameters) uint32 {
	d := xxhash.New()
	_, _ = d.WriteString(params.Mid)
	for _, c := range params.Codecs {
		_, _ = d.WriteString(strings.ToLower(c.MimeType))
		_, _ = d.WriteString(strconv.Itoa(int(c.PayloadType)))
	}
	for _, e := range params.Encodings {
		_, _ = d.WriteString(strconv.FormatUint(uint64(e.Ssrc), 10))
		_, _ = d.WriteString(e.Rid)
	}
	if params.Rtcp != nil {
		_, _ = d.WriteString(params.Rtcp.Cname)
	}
	span := uint64(maxMappedSsrc-minMappedSsrc) - uint64(len(params.Encodings))
	return uint32(minMappedSsrc + d.Sum64()%span)
}
