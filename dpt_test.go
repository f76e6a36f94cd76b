package knxip

import (
	"testing"
	"time"
)

// ─── DPT9 (2-byte float) ───────────────────────────────────────────

func TestEncodeFloat16(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		want    []byte
		wantErr bool
	}{
		{"minus thirty", -30, []byte{0x8a, 0x24}, false},
		{"small positive", 0.01, []byte{0x00, 0x01}, false},
		{"one", 1, []byte{0x00, 0x64}, false},
		{"above max", 670760.97, nil, true},
		{"below min", -671088.65, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeFloat16(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeFloat16(%v) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != 2 || got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Errorf("EncodeFloat16(%v) = %02x %02x, want %02x %02x", tt.value, got[0], got[1], tt.want[0], tt.want[1])
			}
		})
	}
}

func TestDecodeFloat16RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"minus thirty", -30},
		{"small positive", 0.01},
		{"one", 1},
		{"twenty one point five", 21.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeFloat16(tt.value)
			if err != nil {
				t.Fatalf("EncodeFloat16: %v", err)
			}
			decoded, err := DecodeFloat16(encoded)
			if err != nil {
				t.Fatalf("DecodeFloat16: %v", err)
			}
			if diff := decoded - tt.value; diff > 0.02 || diff < -0.02 {
				t.Errorf("round trip %v -> %v, off by %v", tt.value, decoded, diff)
			}
		})
	}
}

func TestDecodeFloat16TooShort(t *testing.T) {
	if _, err := DecodeFloat16([]byte{0x00}); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

// ─── DPT10 (time of day) ───────────────────────────────────────────

func TestDecodeTime(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want KNXTime
	}{
		{"monday afternoon", []byte{0x31, 0x01, 0x24}, KNXTime{Weekday: 1, Hour: 17, Minute: 1, Second: 36}},
		{"no weekday midnight", []byte{0x00, 0x00, 0x00}, KNXTime{Weekday: 0, Hour: 0, Minute: 0, Second: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeTime(tt.data)
			if err != nil {
				t.Fatalf("DecodeTime: %v", err)
			}
			if got != tt.want {
				t.Errorf("DecodeTime(%v) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}

func TestEncodeTimeRoundTrip(t *testing.T) {
	in := KNXTime{Weekday: 1, Hour: 17, Minute: 1, Second: 36}
	data, err := EncodeTime(in)
	if err != nil {
		t.Fatalf("EncodeTime: %v", err)
	}
	want := []byte{0x31, 0x01, 0x24}
	if data[0] != want[0] || data[1] != want[1] || data[2] != want[2] {
		t.Errorf("EncodeTime(%+v) = %v, want %v", in, data, want)
	}

	got, err := DecodeTime(data)
	if err != nil {
		t.Fatalf("DecodeTime: %v", err)
	}
	if got != in {
		t.Errorf("round trip = %+v, want %+v", got, in)
	}
}

func TestEncodeTimeOutOfRange(t *testing.T) {
	if _, err := EncodeTime(KNXTime{Hour: 24}); err == nil {
		t.Fatal("expected error for hour 24")
	}
}

// ─── DPT11 (date) ───────────────────────────────────────────────────

func TestDecodeDate(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want time.Time
	}{
		{"pivot to 2000s", []byte{1, 2, 16}, time.Date(2016, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"pivot to 1900s", []byte{31, 12, 95}, time.Date(1995, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"pivot boundary 90", []byte{1, 1, 90}, time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"pivot boundary 89", []byte{1, 1, 89}, time.Date(2089, 1, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDate(tt.data)
			if err != nil {
				t.Fatalf("DecodeDate: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("DecodeDate(%v) = %v, want %v", tt.data, got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeDateRoundTrip(t *testing.T) {
	in := time.Date(1995, 12, 31, 0, 0, 0, 0, time.UTC)
	data, err := EncodeDate(in)
	if err != nil {
		t.Fatalf("EncodeDate: %v", err)
	}
	want := []byte{31, 12, 95}
	if data[0] != want[0] || data[1] != want[1] || data[2] != want[2] {
		t.Errorf("EncodeDate(%v) = %v, want %v", in, data, want)
	}
}

func TestEncodeDateOutOfRange(t *testing.T) {
	if _, err := EncodeDate(time.Date(1800, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Fatal("expected error for year 1800")
	}
}

// ─── DPT19 (combined date-time) ────────────────────────────────────

func TestEncodeDecodeDateTimeRoundTrip(t *testing.T) {
	in := KNXDateTime{
		Time:    time.Date(2024, 3, 15, 13, 45, 2, 0, time.UTC),
		Weekday: 5,
	}
	data, err := EncodeDateTime(in)
	if err != nil {
		t.Fatalf("EncodeDateTime: %v", err)
	}
	if len(data) != 8 {
		t.Fatalf("EncodeDateTime produced %d bytes, want 8", len(data))
	}

	got, err := DecodeDateTime(data)
	if err != nil {
		t.Fatalf("DecodeDateTime: %v", err)
	}
	if got.Weekday != in.Weekday {
		t.Errorf("weekday = %d, want %d", got.Weekday, in.Weekday)
	}
	if got.Time.Year() != 2024 || got.Time.Month() != 3 || got.Time.Day() != 15 {
		t.Errorf("date = %v, want 2024-03-15", got.Time)
	}
	if got.Time.Hour() != 13 || got.Time.Minute() != 45 || got.Time.Second() != 2 {
		t.Errorf("time = %v, want 13:45:02", got.Time)
	}
}

func TestDecodeDateTimeTooShort(t *testing.T) {
	if _, err := DecodeDateTime([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short buffer")
	}
}
