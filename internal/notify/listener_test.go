package notify

import "testing"

func TestParsePayload(t *testing.T) {
	tests := []struct {
		payload string
		want    uint
		wantErr bool
	}{
		{"42", 42, false},
		{" 7\n", 7, false},
		{"0", 0, true},
		{"", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := ParsePayload(tt.payload)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePayload(%q) error = %v, wantErr %v", tt.payload, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePayload(%q) = %d, want %d", tt.payload, got, tt.want)
		}
	}
}
