package knxip

import "testing"

func TestEncodeDecodeCEMIShortGroupWrite(t *testing.T) {
	encoded, err := EncodeCEMI(0, GroupAddress(1), CommandGroupWrite, []byte{1})
	if err != nil {
		t.Fatalf("EncodeCEMI: %v", err)
	}

	decoded, err := DecodeCEMI(encoded)
	if err != nil {
		t.Fatalf("DecodeCEMI: %v", err)
	}
	if decoded.Command != CommandGroupWrite {
		t.Errorf("Command = %v, want CommandGroupWrite", decoded.Command)
	}
	if decoded.Dest != 1 {
		t.Errorf("Dest = %d, want 1", decoded.Dest)
	}
	if len(decoded.Data) != 1 || decoded.Data[0] != 1 {
		t.Errorf("Data = %v, want [1]", decoded.Data)
	}
}

func TestEncodeDecodeCEMILongGroupResponse(t *testing.T) {
	payload := []byte{0x06, 0x41}
	encoded, err := EncodeCEMI(0, GroupAddress(2305), CommandGroupResponse, payload)
	if err != nil {
		t.Fatalf("EncodeCEMI: %v", err)
	}

	decoded, err := DecodeCEMI(encoded)
	if err != nil {
		t.Fatalf("DecodeCEMI: %v", err)
	}
	if decoded.Command != CommandGroupResponse {
		t.Errorf("Command = %v, want CommandGroupResponse", decoded.Command)
	}
	if decoded.Dest != 2305 {
		t.Errorf("Dest = %d, want 2305", decoded.Dest)
	}
	if len(decoded.Data) != 2 || decoded.Data[0] != payload[0] || decoded.Data[1] != payload[1] {
		t.Errorf("Data = %v, want %v", decoded.Data, payload)
	}
}

func TestEncodeDecodeCEMIGroupRead(t *testing.T) {
	encoded, err := EncodeCEMI(0, GroupAddress(1), CommandGroupRead, nil)
	if err != nil {
		t.Fatalf("EncodeCEMI: %v", err)
	}

	decoded, err := DecodeCEMI(encoded)
	if err != nil {
		t.Fatalf("DecodeCEMI: %v", err)
	}
	if decoded.Command != CommandGroupRead {
		t.Errorf("Command = %v, want CommandGroupRead", decoded.Command)
	}
	if decoded.Data != nil {
		t.Errorf("Data = %v, want nil", decoded.Data)
	}
}

// TestDecodeCEMIGroupResponseShortBit covers a short-APDU GROUP_RESPONSE
// with a single set data bit: its APCI field is 0x41 (0x40 response marker
// | 0x01 data bit). The 0x40 bit classifies it as a response, and the 0x3f
// data mask recovers the packed data bit.
func TestDecodeCEMIGroupResponseShortBit(t *testing.T) {
	encoded, err := EncodeCEMI(0, GroupAddress(1), CommandGroupResponse, []byte{1})
	if err != nil {
		t.Fatalf("EncodeCEMI: %v", err)
	}

	decoded, err := DecodeCEMI(encoded)
	if err != nil {
		t.Fatalf("DecodeCEMI: %v", err)
	}
	if decoded.Command != CommandGroupResponse {
		t.Errorf("Command = %v, want CommandGroupResponse", decoded.Command)
	}
	if len(decoded.Data) != 1 || decoded.Data[0] != 1 {
		t.Errorf("Data = %v, want [1]", decoded.Data)
	}
}

// TestDecodeCEMIWriteTakesPriorityOverResponse covers an APCI with both the
// GROUP_WRITE (0x080) and GROUP_RESPONSE (0x040) bits set: decodeCommand
// must classify it as GroupWrite, matching the gateway's own priority order
// of checking the write bit ahead of the response bit.
func TestDecodeCEMIWriteTakesPriorityOverResponse(t *testing.T) {
	raw := []byte{cemiLDataInd, 0x00, cemiCtl1, cemiCtl2, 0x00, 0x00, 0x00, 0x01, 0x01, 0x00, 0xc0}

	decoded, err := DecodeCEMI(raw)
	if err != nil {
		t.Fatalf("DecodeCEMI: %v", err)
	}
	if decoded.Command != CommandGroupWrite {
		t.Errorf("Command = %v, want CommandGroupWrite when both APCI bits are set", decoded.Command)
	}
}

func TestDecodeCEMITooShort(t *testing.T) {
	if _, err := DecodeCEMI([]byte{0x29, 0x00}); err == nil {
		t.Fatal("expected error for truncated cEMI frame")
	}
}

func TestEncodeCEMIInvalidCommand(t *testing.T) {
	if _, err := EncodeCEMI(0, GroupAddress(1), CommandUnknown, nil); err == nil {
		t.Fatal("expected error encoding CommandUnknown")
	}
}
