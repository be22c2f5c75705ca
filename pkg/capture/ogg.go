package capture

import (
	"bytes"
	"encoding/binary"
)

// Minimal Ogg muxer for a single Opus stream (RFC 3533 framing,
// RFC 7845 headers). One packet per page, which is valid if not
// space-optimal; utterances are a few seconds long at most.

const (
	oggFlagContinued = 0x01
	oggFlagBOS       = 0x02
	oggFlagEOS       = 0x04
)

// oggCRCTable is the CRC-32 table for polynomial 0x04c11db7, direct
// (unreflected), as required by the Ogg page checksum.
var oggCRCTable = func() [256]uint32 {
	var table [256]uint32
	for i := range table {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ 0x04c11db7
			} else {
				r <<= 1
			}
		}
		table[i] = r
	}
	return table
}()

func oggCRC(data []byte) uint32 {
	var crc uint32
	for _, b := range data {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

type oggWriter struct {
	buf     bytes.Buffer
	serial  uint32
	pageSeq uint32
}

// newOggWriter creates a muxer and writes the OpusHead and OpusTags
// header pages.
func newOggWriter(channels, sampleRate, preSkip int) *oggWriter {
	w := &oggWriter{serial: 0x564f5848} // arbitrary fixed stream serial

	head := make([]byte, 19)
	copy(head[0:8], "OpusHead")
	head[8] = 1 // version
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:12], uint16(preSkip))
	binary.LittleEndian.PutUint32(head[12:16], uint32(sampleRate))
	// output gain 0, mapping family 0
	w.writePage(head, 0, oggFlagBOS)

	vendor := "voxhire"
	tags := make([]byte, 8+4+len(vendor)+4)
	copy(tags[0:8], "OpusTags")
	binary.LittleEndian.PutUint32(tags[8:12], uint32(len(vendor)))
	copy(tags[12:12+len(vendor)], vendor)
	// zero user comments
	w.writePage(tags, 0, 0)

	return w
}

// writeAudio appends one opus packet as an audio page.
func (w *oggWriter) writeAudio(packet []byte, granule uint64, last bool) {
	var flags byte
	if last {
		flags = oggFlagEOS
	}
	w.writePage(packet, granule, flags)
}

func (w *oggWriter) writePage(packet []byte, granule uint64, flags byte) {
	// Lacing: runs of 255 with a final short segment. A packet whose
	// length is a multiple of 255 needs a trailing zero lacing value.
	var lacing []byte
	remaining := len(packet)
	for remaining >= 255 {
		lacing = append(lacing, 255)
		remaining -= 255
	}
	lacing = append(lacing, byte(remaining))

	header := make([]byte, 27+len(lacing))
	copy(header[0:4], "OggS")
	header[4] = 0 // version
	header[5] = flags
	binary.LittleEndian.PutUint64(header[6:14], granule)
	binary.LittleEndian.PutUint32(header[14:18], w.serial)
	binary.LittleEndian.PutUint32(header[18:22], w.pageSeq)
	// CRC at [22:26] filled below
	header[26] = byte(len(lacing))
	copy(header[27:], lacing)

	page := make([]byte, 0, len(header)+len(packet))
	page = append(page, header...)
	page = append(page, packet...)

	crc := oggCRC(page)
	binary.LittleEndian.PutUint32(page[22:26], crc)

	w.buf.Write(page)
	w.pageSeq++
}

func (w *oggWriter) bytes() []byte {
	return w.buf.Bytes()
}
