package capture

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWAVEncoder_Header(t *testing.T) {
	enc := NewWAVEncoder()

	samples := []int16{0, 100, -100, 32767}
	data, err := enc.Encode(samples, 16000, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if len(data) != 44+len(samples)*2 {
		t.Fatalf("Expected %d bytes, got %d", 44+len(samples)*2, len(data))
	}

	if !bytes.Equal(data[0:4], []byte("RIFF")) {
		t.Errorf("Missing RIFF magic: %q", data[0:4])
	}
	if !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Errorf("Missing WAVE magic: %q", data[8:12])
	}

	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		t.Errorf("Expected 1 channel, got %d", ch)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", bits)
	}
	if dataLen := binary.LittleEndian.Uint32(data[40:44]); dataLen != uint32(len(samples)*2) {
		t.Errorf("Expected data length %d, got %d", len(samples)*2, dataLen)
	}

	// Sample payload round-trips.
	if got := int16(binary.LittleEndian.Uint16(data[46:48])); got != 100 {
		t.Errorf("Expected second sample 100, got %d", got)
	}
}

func TestWAVEncoder_Empty(t *testing.T) {
	enc := NewWAVEncoder()

	data, err := enc.Encode(nil, 16000, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(data) != 44 {
		t.Errorf("Expected bare 44-byte header, got %d bytes", len(data))
	}
	if enc.MIMEType() != "audio/wav" {
		t.Errorf("Unexpected MIME type: %s", enc.MIMEType())
	}
}

func TestOggWriter_Framing(t *testing.T) {
	w := newOggWriter(1, 16000, opusPreSkip)
	w.writeAudio([]byte{0xFC, 0x01, 0x02}, 960, true)

	data := w.bytes()

	// Three pages: OpusHead, OpusTags, one audio page.
	var pages [][]byte
	for off := 0; off < len(data); {
		if !bytes.Equal(data[off:off+4], []byte("OggS")) {
			t.Fatalf("Page at offset %d missing OggS capture pattern", off)
		}
		segs := int(data[off+26])
		bodyLen := 0
		for i := 0; i < segs; i++ {
			bodyLen += int(data[off+27+i])
		}
		pageLen := 27 + segs + bodyLen
		pages = append(pages, data[off:off+pageLen])
		off += pageLen
	}

	if len(pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(pages))
	}

	// First page: beginning-of-stream flag and OpusHead magic.
	if pages[0][5]&oggFlagBOS == 0 {
		t.Error("First page missing BOS flag")
	}
	if !bytes.Contains(pages[0], []byte("OpusHead")) {
		t.Error("First page missing OpusHead")
	}

	if !bytes.Contains(pages[1], []byte("OpusTags")) {
		t.Error("Second page missing OpusTags")
	}

	// Last page: end-of-stream flag and the audio payload.
	last := pages[2]
	if last[5]&oggFlagEOS == 0 {
		t.Error("Last page missing EOS flag")
	}
	if granule := binary.LittleEndian.Uint64(last[6:14]); granule != 960 {
		t.Errorf("Expected granule 960, got %d", granule)
	}

	// Page sequence numbers are consecutive.
	for i, page := range pages {
		if seq := binary.LittleEndian.Uint32(page[18:22]); seq != uint32(i) {
			t.Errorf("Page %d has sequence %d", i, seq)
		}
	}

	// CRC verifies with the checksum field zeroed.
	for i, page := range pages {
		stored := binary.LittleEndian.Uint32(page[22:26])
		scratch := make([]byte, len(page))
		copy(scratch, page)
		binary.LittleEndian.PutUint32(scratch[22:26], 0)
		if got := oggCRC(scratch); got != stored {
			t.Errorf("Page %d CRC mismatch: stored %08x computed %08x", i, stored, got)
		}
	}
}

func TestOpusEncoder_RejectsUnsupportedRates(t *testing.T) {
	if _, err := NewOpusEncoder(44100, 1); err == nil {
		t.Error("Expected error for 44.1kHz")
	}
	if _, err := NewOpusEncoder(16000, 3); err == nil {
		t.Error("Expected error for 3 channels")
	}
}
