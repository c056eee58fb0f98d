package h264export

import "encoding/binary"

// NAL unit types used when splitting the stream.
const (
	naluIDR = 5
	naluSPS = 7
	naluPPS = 8
	naluAUD = 9
)

// accessUnit is the NAL units of one encoded frame.
type accessUnit struct {
	nalus    [][]byte
	keyframe bool
}

// parseAnnexB splits an Annex B byte stream into NAL units.
func parseAnnexB(data []byte) [][]byte {
	var nalus [][]byte
	start := -1
	i := 0

	for i+2 < len(data) {
		codeLen := 0
		if data[i] == 0 && data[i+1] == 0 {
			if data[i+2] == 1 {
				codeLen = 3
			} else if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
				codeLen = 4
			}
		}
		if codeLen == 0 {
			i++
			continue
		}
		if start >= 0 && i > start {
			nalus = append(nalus, data[start:i])
		}
		i += codeLen
		start = i
	}

	if start >= 0 && start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}

func naluType(nalu []byte) byte {
	return nalu[0] & 0x1F
}

// splitAccessUnits groups NAL units into frames at access unit delimiters and
// collects the first SPS and PPS. Delimiters themselves are dropped.
func splitAccessUnits(nalus [][]byte) (units []accessUnit, sps, pps []byte) {
	var cur accessUnit
	flush := func() {
		if len(cur.nalus) > 0 {
			units = append(units, cur)
		}
		cur = accessUnit{}
	}

	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch naluType(nalu) {
		case naluAUD:
			flush()
			continue
		case naluSPS:
			if sps == nil {
				sps = nalu
			}
		case naluPPS:
			if pps == nil {
				pps = nalu
			}
		case naluIDR:
			cur.keyframe = true
		}
		cur.nalus = append(cur.nalus, nalu)
	}
	flush()
	return units, sps, pps
}

// toAVCC length-prefixes the NAL units of a frame, leaving out parameter
// sets that live in the avcC box.
func toAVCC(nalus [][]byte) []byte {
	size := 0
	for _, nalu := range nalus {
		size += 4 + len(nalu)
	}

	out := make([]byte, 0, size)
	for _, nalu := range nalus {
		if t := naluType(nalu); t == naluSPS || t == naluPPS {
			continue
		}
		out = binary.BigEndian.AppendUint32(out, uint32(len(nalu)))
		out = append(out, nalu...)
	}
	return out
}
