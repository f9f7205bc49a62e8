package target

import (
	"context"
	"errors"
	"testing"
)

type fakeDetector struct {
	name  string
	err   error
	calls int
}

func (d *fakeDetector) DetectChip(ctx context.Context, port string, baud int) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	return d.name, nil
}

func chipPtr(v uint16) *uint16 { return &v }

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		explicit    string
		chipVersion *uint16
		detector    *fakeDetector
		want        string
		wantErr     bool
		wantDetects int
	}{
		{
			name:        "explicit wins over conflicting version note",
			explicit:    "esp32s3",
			chipVersion: chipPtr(ChipESP32),
			detector:    &fakeDetector{name: "ESP32-C3"},
			want:        "esp32s3",
			wantDetects: 0,
		},
		{
			name:        "version note without live detection",
			explicit:    Auto,
			chipVersion: chipPtr(ChipESP32C3),
			detector:    &fakeDetector{name: "ESP32"},
			want:        "esp32c3",
			wantDetects: 0,
		},
		{
			name:        "unknown code falls through to detection",
			explicit:    Auto,
			chipVersion: chipPtr(0xFFFF),
			detector:    &fakeDetector{name: "ESP32-S2"},
			want:        "esp32s2",
			wantDetects: 1,
		},
		{
			name:        "no note uses detection and normalizes name",
			explicit:    "",
			detector:    &fakeDetector{name: "ESP32-S3"},
			want:        "esp32s3",
			wantDetects: 1,
		},
		{
			name:     "transport failure is terminal",
			explicit: Auto,
			detector: &fakeDetector{err: errors.New("serial open failed")},
			wantErr:  true,
		},
		{
			name:     "no detector available",
			explicit: Auto,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Resolver{
				Explicit: tt.explicit,
				Port:     "/dev/ttyUSB0",
				Baud:     115200,
			}
			if tt.detector != nil {
				r.Detector = tt.detector
			}

			got, err := r.Resolve(context.Background(), tt.chipVersion)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Resolve() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var resErr *ResolutionError
				if !errors.As(err, &resErr) {
					t.Errorf("error type = %T, want *ResolutionError", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("Resolve() = %q, want %q", got, tt.want)
			}
			if tt.detector != nil && tt.wantDetects > 0 && tt.detector.calls != tt.wantDetects {
				t.Errorf("detector calls = %d, want %d", tt.detector.calls, tt.wantDetects)
			}
			if tt.detector != nil && tt.wantDetects == 0 && tt.detector.calls != 0 {
				t.Errorf("detector called %d times, want 0", tt.detector.calls)
			}
		})
	}
}

func TestResolveCachesResult(t *testing.T) {
	d := &fakeDetector{name: "ESP32"}
	r := &Resolver{Explicit: Auto, Detector: d}

	first, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("first Resolve() error = %v", err)
	}
	second, err := r.Resolve(context.Background(), nil)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if first != second {
		t.Errorf("cached result differs: %q vs %q", first, second)
	}
	if d.calls != 1 {
		t.Errorf("detector calls = %d, want 1 (result cached)", d.calls)
	}
}

func TestGDBBinary(t *testing.T) {
	tests := []struct {
		target  string
		want    string
		wantErr bool
	}{
		{"esp32", "xtensa-esp32-elf-gdb", false},
		{"esp32s2", "xtensa-esp32-elf-gdb", false},
		{"esp32s3", "xtensa-esp32-elf-gdb", false},
		{"esp32c3", "riscv32-esp-elf-gdb", false},
		{"esp8266", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			got, err := GDBBinary(tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GDBBinary(%q) error = %v, wantErr %v", tt.target, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GDBBinary(%q) = %q, want %q", tt.target, got, tt.want)
			}
		})
	}
}

func TestParseChipName(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
		wantOK bool
	}{
		{
			name:   "chip is banner",
			output: "esptool v4.7\nSerial port /dev/ttyUSB0\nConnecting....\nChip is ESP32-S3 (revision v0.1)\n",
			want:   "ESP32-S3",
			wantOK: true,
		},
		{
			name:   "detecting banner",
			output: "Detecting chip type... ESP32\n",
			want:   "ESP32",
			wantOK: true,
		},
		{
			name:   "no banner",
			output: "A fatal error occurred: Could not connect\n",
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseChipName(tt.output)
			if ok != tt.wantOK {
				t.Fatalf("parseChipName() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("parseChipName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultRomELF(t *testing.T) {
	if got := DefaultRomELF("esp32s3"); got != "esp32s3_rom.elf" {
		t.Errorf("DefaultRomELF() = %q", got)
	}
}
