package demux

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
	"github.com/ebmlmux/gomkvmerge/internal/trackpac"
)

// probeSRT recognizes SubRip by its first non-blank line being a bare
// integer cue index followed (on the next line) by a "-->" timecode range.
func probeSRT(r io.ReadSeeker) (bool, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() && len(lines) < 2 {
		line := strings.TrimSpace(scanner.Text())
		if line == "" && len(lines) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) < 2 {
		return false, nil
	}
	if _, err := strconv.Atoi(lines[0]); err != nil {
		return false, nil
	}
	return strings.Contains(lines[1], "-->"), nil
}

type srtCue struct {
	startMS int64
	endMS   int64
	text    string
}

// srtDemux parses the whole file up front (spec §4.2 SRT variant: subtitle
// files are small enough that batching beats incremental line scanning)
// into an ordered cue list, then serves one Packet per cue from Read.
type srtDemux struct {
	cues []srtCue
	next int
	pac  *trackpac.Packetizer
}

func openSRT(r io.ReadSeeker, path string, bind BindFunc) (Demuxer, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "open", Path: path, Err: err}
	}

	d := &srtDemux{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		index := strings.TrimSpace(scanner.Text())
		if index == "" {
			continue
		}
		if _, err := strconv.Atoi(index); err != nil {
			return nil, &mkverrors.DemuxInitError{Format: "srt", Detail: fmt.Sprintf("expected cue index, got %q", index)}
		}
		if !scanner.Scan() {
			return nil, &mkverrors.DemuxInitError{Format: "srt", Detail: "truncated file: missing timecode line"}
		}
		start, end, err := parseSRTTimecodeLine(scanner.Text())
		if err != nil {
			return nil, &mkverrors.DemuxInitError{Format: "srt", Detail: err.Error(), Err: err}
		}

		var textLines []string
		for scanner.Scan() {
			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				break
			}
			textLines = append(textLines, line)
		}
		d.cues = append(d.cues, srtCue{startMS: start, endMS: end, text: strings.Join(textLines, "\n")})
	}
	if err := scanner.Err(); err != nil {
		return nil, &mkverrors.DemuxInitError{Format: "srt", Detail: "scanning file", Err: err}
	}

	spec := TrackSpec{Entry: trackpac.TrackEntry{Number: 1, CodecID: "S_TEXT/UTF8"}, Type: TrackSubtitle}
	if pac, ok := bind(spec); ok {
		d.pac = pac
	}
	return d, nil
}

func parseSRTTimecodeLine(line string) (start, end int64, err error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("demux srt: malformed timecode line %q", line)
	}
	start, err = parseSRTTimecode(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err = parseSRTTimecode(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseSRTTimecode parses "HH:MM:SS,mmm".
func parseSRTTimecode(s string) (int64, error) {
	s = strings.ReplaceAll(s, ".", ",")
	var h, m, sec, ms int64
	_, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms)
	if err != nil {
		return 0, fmt.Errorf("demux srt: invalid timecode %q: %w", s, err)
	}
	return h*3600000 + m*60000 + sec*1000 + ms, nil
}

func (d *srtDemux) Tracks() []TrackSpec {
	return []TrackSpec{{Entry: trackpac.TrackEntry{Number: 1, CodecID: "S_TEXT/UTF8"}, Type: TrackSubtitle}}
}

func (d *srtDemux) Read() error {
	if d.next >= len(d.cues) {
		return io.EOF
	}
	cue := d.cues[d.next]
	d.next++
	if d.pac != nil {
		duration := cue.endMS - cue.startMS
		d.pac.PushRaw([]byte(cue.text), cue.startMS, &duration, true)
	}
	return nil
}

func (d *srtDemux) DisplayPriority() int { return 20 }

func (d *srtDemux) DisplayProgress() int {
	if len(d.cues) == 0 {
		return -1
	}
	return d.next * 100 / len(d.cues)
}

func (d *srtDemux) Close() error { return nil }
