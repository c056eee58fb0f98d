package h264export

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/Eyevinn/mp4ff/mp4"
)

// frameTicks is the duration of one frame in track timescale units. The
// timescale is fps*frameTicks, so fractional rates like 23.976 stay exact.
const frameTicks = 1000

// Timescale returns the track timescale used for a frame rate.
func Timescale(fps float64) uint32 {
	return uint32(math.Round(fps * frameTicks))
}

// buildMP4 muxes access units into a fragmented MP4 with one sample per frame.
func buildMP4(units []accessUnit, sps, pps []byte, width, height int, fps float64) ([]byte, error) {
	if len(units) == 0 {
		return nil, ErrNoFrames
	}
	if sps == nil || pps == nil {
		return nil, fmt.Errorf("h264export: stream has no SPS/PPS")
	}

	timescale := Timescale(fps)
	trackID := uint32(1)

	init := mp4.CreateEmptyInit()
	init.AddEmptyTrack(timescale, "video", "und")
	trak := init.Moov.Trak

	avcC, err := mp4.CreateAvcC([][]byte{sps}, [][]byte{pps}, true)
	if err != nil {
		return nil, fmt.Errorf("create avcC: %w", err)
	}
	avc1 := mp4.CreateVisualSampleEntryBox("avc1", uint16(width), uint16(height), avcC)
	trak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)
	trak.Tkhd.Width = mp4.Fixed32(width << 16)
	trak.Tkhd.Height = mp4.Fixed32(height << 16)

	frag, err := mp4.CreateFragment(1, trackID)
	if err != nil {
		return nil, fmt.Errorf("create fragment: %w", err)
	}

	for i, unit := range units {
		flags := mp4.NonSyncSampleFlags
		if unit.keyframe {
			flags = mp4.SyncSampleFlags
		}
		data := toAVCC(unit.nalus)
		frag.AddFullSample(mp4.FullSample{
			Sample: mp4.Sample{
				Flags: flags,
				Size:  uint32(len(data)),
				Dur:   frameTicks,
			},
			DecodeTime: uint64(i) * frameTicks,
			Data:       data,
		})
	}

	var buf bytes.Buffer
	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso2", "avc1", "mp41"})
	if err := ftyp.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode ftyp: %w", err)
	}
	if err := init.Moov.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode moov: %w", err)
	}
	if err := frag.Encode(&buf); err != nil {
		return nil, fmt.Errorf("encode fragment: %w", err)
	}
	return buf.Bytes(), nil
}

// Info describes the video track of an MP4 file.
type Info struct {
	Codec     string // sample entry type, e.g. "avc1"
	Width     int
	Height    int
	Samples   int
	Keyframes int
	Timescale uint32
	Duration  uint64 // in timescale units
}

// Seconds returns the track duration in seconds.
func (i Info) Seconds() float64 {
	if i.Timescale == 0 {
		return 0
	}
	return float64(i.Duration) / float64(i.Timescale)
}

// FPS returns the average frame rate.
func (i Info) FPS() float64 {
	if s := i.Seconds(); s > 0 {
		return float64(i.Samples) / s
	}
	return 0
}

// Inspect reads the video track of an MP4 and counts its samples.
func Inspect(r io.ReadSeeker) (Info, error) {
	file, err := mp4.DecodeFile(r)
	if err != nil {
		return Info{}, fmt.Errorf("decode mp4: %w", err)
	}

	var moov *mp4.MoovBox
	if file.Init != nil && file.Init.Moov != nil {
		moov = file.Init.Moov
	} else {
		moov = file.Moov
	}
	if moov == nil {
		return Info{}, ErrNoVideoTrack
	}

	var trak *mp4.TrakBox
	for _, t := range moov.Traks {
		if t.Mdia != nil && t.Mdia.Hdlr != nil && t.Mdia.Hdlr.HandlerType == "vide" {
			trak = t
			break
		}
	}
	if trak == nil {
		return Info{}, ErrNoVideoTrack
	}

	info := Info{
		Width:  int(uint32(trak.Tkhd.Width) >> 16),
		Height: int(uint32(trak.Tkhd.Height) >> 16),
	}
	if trak.Mdia.Mdhd != nil {
		info.Timescale = trak.Mdia.Mdhd.Timescale
	}
	if minf := trak.Mdia.Minf; minf != nil && minf.Stbl != nil && minf.Stbl.Stsd != nil && len(minf.Stbl.Stsd.Children) > 0 {
		info.Codec = minf.Stbl.Stsd.Children[0].Type()
	}

	if file.IsFragmented() {
		return inspectFragments(file, trak.Tkhd.TrackID, info)
	}

	stbl := trak.Mdia.Minf.Stbl
	if stbl == nil || stbl.Stsz == nil {
		return Info{}, fmt.Errorf("h264export: no sample table found")
	}
	info.Samples = int(stbl.Stsz.SampleNumber)
	if stbl.Stss != nil {
		info.Keyframes = len(stbl.Stss.SampleNumber)
	} else {
		info.Keyframes = info.Samples
	}
	if trak.Mdia.Mdhd != nil {
		info.Duration = trak.Mdia.Mdhd.Duration
	}
	return info, nil
}

func inspectFragments(file *mp4.File, trackID uint32, info Info) (Info, error) {
	var trex *mp4.TrexBox
	if file.Init.Moov.Mvex != nil {
		for _, t := range file.Init.Moov.Mvex.Trexs {
			if t.TrackID == trackID {
				trex = t
				break
			}
		}
	}

	for _, seg := range file.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			samples, err := frag.GetFullSamples(trex)
			if err != nil {
				return Info{}, fmt.Errorf("get samples: %w", err)
			}
			for _, s := range samples {
				info.Samples++
				info.Duration += uint64(s.Dur)
				if s.Flags == mp4.SyncSampleFlags {
					info.Keyframes++
				}
			}
		}
	}
	return info, nil
}
