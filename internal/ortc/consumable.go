package ortc

// GetConsumableRtpParameters derives the parameter set any consumer of a
// producer will see once its stream has been mapped into the router.
func GetConsumableRtpParameters(kind MediaKind, params *RtpParameters, caps *RtpCapabilities, mapping *RtpMapping) *RtpParameters {
	consumable := &RtpParameters{}

	for _, codec := range params.Codecs {
		if codec.isRtx() {
			continue
		}
		mappedPayloadType, ok := mappedPayloadTypeOf(mapping, codec.PayloadType)
		if !ok {
			continue
		}
		capCodec := findCapabilityByPayloadType(caps, mappedPayloadType)
		if capCodec == nil {
			continue
		}
		consumable.Codecs = append(consumable.Codecs, &RtpCodecParameters{
			MimeType:     capCodec.MimeType,
			PayloadType:  capCodec.PreferredPayloadType,
			ClockRate:    capCodec.ClockRate,
			Channels:     capCodec.Channels,
			Parameters:   codec.Parameters,
			RtcpFeedback: append([]RtcpFeedback(nil), capCodec.RtcpFeedback...),
		})

		for _, capRtx := range caps.Codecs {
			if capRtx.isRtx() && capRtx.Parameters.Apt == capCodec.PreferredPayloadType {
				consumable.Codecs = append(consumable.Codecs, &RtpCodecParameters{
					MimeType:    capRtx.MimeType,
					PayloadType: capRtx.PreferredPayloadType,
					ClockRate:   capRtx.ClockRate,
					Parameters:  capRtx.Parameters,
				})
				break
			}
		}
	}

	for _, ext := range caps.HeaderExtensions {
		if ext.Kind != kind {
			continue
		}
		if ext.Direction != MediaDirectionSendrecv && ext.Direction != MediaDirectionSendonly {
			continue
		}
		consumable.HeaderExtensions = append(consumable.HeaderExtensions, &RtpHeaderExtensionParameters{
			URI: ext.URI,
			ID:  ext.PreferredID,
		})
	}

	for i, enc := range params.Encodings {
		if i >= len(mapping.Encodings) {
			break
		}
		consumable.Encodings = append(consumable.Encodings, &RtpEncodingParameters{
			Ssrc:            mapping.Encodings[i].MappedSsrc,
			Dtx:             enc.Dtx,
			ScalabilityMode: enc.ScalabilityMode,
			MaxBitrate:      enc.MaxBitrate,
		})
	}

	consumable.Rtcp = &RtcpParameters{ReducedSize: true}
	if params.Rtcp != nil {
		consumable.Rtcp.Cname = params.Rtcp.Cname
	}
	return consumable
}

func mappedPayloadTypeOf(mapping *RtpMapping, payloadType uint8) (uint8, bool) {
	for _, c := range mapping.Codecs {
		if c.PayloadType == payloadType {
			return c.MappedPayloadType, true
		}
	}
	return 0, false
}

func findCapabilityByPayloadType(caps *RtpCapabilities, payloadType uint8) *RtpCodecCapability {
	for _, c := range caps.Codecs {
		if c.PreferredPayloadType == payloadType {
			return c
		}
	}
	return nil
}
