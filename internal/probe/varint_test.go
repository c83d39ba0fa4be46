package probe

import (
	"bufio"
	"bytes"
	"testing"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := []int32{0, 1, 127, 128, 255, 300, 2097151, 2147483647, -1}
	for _, v := range cases {
		var buf []byte
		buf = writeVarInt(buf, v)

		got, err := readVarInt(bufio.NewReader(bytes.NewReader(buf)))
		if err != nil {
			t.Fatalf("readVarInt(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip mismatch: wrote %d, read %d", v, got)
		}
	}
}

func TestReadVarInt_TooLong(t *testing.T) {
	// Five bytes, all with the continuation bit set: invalid VarInt.
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := readVarInt(bufio.NewReader(bytes.NewReader(buf))); err == nil {
		t.Fatal("expected error for over-long varint")
	}
}

func TestHandshakeEncoding(t *testing.T) {
	var buf []byte
	buf = writeVarInt(buf, 0x00)
	buf = writeVarInt(buf, -1)
	buf = writeProtoString(buf, "example.com")
	buf = append(buf, 0x63, 0xDD) // port 25565
	buf = writeVarInt(buf, handshakeNextStateStatus)

	r := bufio.NewReader(bytes.NewReader(buf))
	id, err := readVarInt(r)
	if err != nil || id != 0x00 {
		t.Fatalf("expected packet id 0, got %d err=%v", id, err)
	}
	proto, err := readVarInt(r)
	if err != nil || proto != -1 {
		t.Fatalf("expected protocol -1, got %d err=%v", proto, err)
	}
}
