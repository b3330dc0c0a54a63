package ortc

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRtpParameters   = errors.New("invalid rtp parameters")
	ErrInvalidRtpCapabilities = errors.New("invalid rtp capabilities")
	ErrUnsupportedCodec       = errors.New("unsupported codec")
)

// ValidateRtpParameters checks the structural consistency of params without
// looking at any router.
func ValidateRtpParameters(params *RtpParameters) error {
	if params == nil {
		return fmt.Errorf("%w: missing parameters", ErrInvalidRtpParameters)
	}
	if len(params.Codecs) == 0 {
		return fmt.Errorf("%w: no codecs", ErrInvalidRtpParameters)
	}

	payloadTypes := make(map[uint8]*RtpCodecParameters, len(params.Codecs))
	for _, codec := range params.Codecs {
		if err := validateCodec(codec.MimeType, codec.ClockRate); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRtpParameters, err)
		}
		if _, dup := payloadTypes[codec.PayloadType]; dup {
			return fmt.Errorf("%w: duplicated payload type %d", ErrInvalidRtpParameters, codec.PayloadType)
		}
		payloadTypes[codec.PayloadType] = codec
	}
	if params.Codecs[0].isRtx() {
		return fmt.Errorf("%w: first codec must be a media codec", ErrInvalidRtpParameters)
	}
	for _, codec := range params.Codecs {
		if !codec.isRtx() {
			continue
		}
		associated, ok := payloadTypes[codec.Parameters.Apt]
		if !ok || associated.isRtx() {
			return fmt.Errorf("%w: rtx codec %d has no associated media codec", ErrInvalidRtpParameters, codec.PayloadType)
		}
	}

	headerIDs := make(map[uint8]struct{}, len(params.HeaderExtensions))
	for _, ext := range params.HeaderExtensions {
		if ext.URI == "" {
			return fmt.Errorf("%w: header extension without uri", ErrInvalidRtpParameters)
		}
		if ext.ID == 0 || ext.ID > 14 {
			return fmt.Errorf("%w: header extension %q has invalid id %d", ErrInvalidRtpParameters, ext.URI, ext.ID)
		}
		if _, dup := headerIDs[ext.ID]; dup {
			return fmt.Errorf("%w: duplicated header extension id %d", ErrInvalidRtpParameters, ext.ID)
		}
		headerIDs[ext.ID] = struct{}{}
	}

	for i, enc := range params.Encodings {
		if enc.CodecPayloadType != nil {
			codec, ok := payloadTypes[*enc.CodecPayloadType]
			if !ok || codec.isRtx() {
				return fmt.Errorf("%w: encoding %d references unknown payload type %d", ErrInvalidRtpParameters, i, *enc.CodecPayloadType)
			}
		}
		if len(params.Encodings) > 1 && enc.Ssrc == 0 && enc.Rid == "" {
			return fmt.Errorf("%w: encoding %d needs ssrc or rid", ErrInvalidRtpParameters, i)
		}
	}
	return nil
}

func ValidateRtpCapabilities(caps *RtpCapabilities) error {
	if caps == nil {
		return fmt.Errorf("%w: missing capabilities", ErrInvalidRtpCapabilities)
	}
	payloadTypes := make(map[uint8]struct{}, len(caps.Codecs))
	for _, codec := range caps.Codecs {
		if err := validateCodec(codec.MimeType, codec.ClockRate); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRtpCapabilities, err)
		}
		if codec.Kind != kindOfMimeType(codec.MimeType) {
			return fmt.Errorf("%w: codec %s has kind %q", ErrInvalidRtpCapabilities, codec.MimeType, codec.Kind)
		}
		if codec.PreferredPayloadType == 0 {
			continue
		}
		if _, dup := payloadTypes[codec.PreferredPayloadType]; dup {
			return fmt.Errorf("%w: duplicated preferred payload type %d", ErrInvalidRtpCapabilities, codec.PreferredPayloadType)
		}
		payloadTypes[codec.PreferredPayloadType] = struct{}{}
	}
	for _, ext := range caps.HeaderExtensions {
		if ext.URI == "" || ext.PreferredID == 0 {
			return fmt.Errorf("%w: invalid header extension %q", ErrInvalidRtpCapabilities, ext.URI)
		}
	}
	return nil
}

func validateCodec(mimeType string, clockRate uint32) error {
	kind, subtype, ok := strings.Cut(mimeType, "/")
	if !ok || subtype == "" || !MediaKind(strings.ToLower(kind)).Valid() {
		return fmt.Errorf("invalid mime type %q", mimeType)
	}
	if clockRate == 0 {
		return fmt.Errorf("codec %s has no clock rate", mimeType)
	}
	return nil
}
