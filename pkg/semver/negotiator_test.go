package semver

import (
	"errors"
	"testing"
)

const negotiatorTestPrefix = "semver:negotiator_test"

func TestNewNegotiator(t *testing.T) {
	tests := []struct {
		name       string
		server     string
		constraint string
		wantErr    bool
	}{
		{"valid", "1.2.0", ">=1.0.0, <2.0.0", false},
		{"caret", "1.4.1", "^1.0.0", false},
		{"bad server", "one", ">=1.0.0", true},
		{"bad constraint", "1.0.0", "abc", true},
		{"server outside range", "2.0.0", ">=1.0.0, <2.0.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNegotiator(tt.server, tt.constraint)
			if (err != nil) != tt.wantErr {
				t.Errorf("%s - NewNegotiator(%q, %q) error = %v, wantErr %v", negotiatorTestPrefix, tt.server, tt.constraint, err, tt.wantErr)
			}
		})
	}
}

func TestNegotiator_Check(t *testing.T) {
	n, err := NewNegotiator("1.2.0", ">=1.0.0, <2.0.0")
	if err != nil {
		t.Fatalf("%s - NewNegotiator failed: %v", negotiatorTestPrefix, err)
	}

	tests := []struct {
		client  string
		wantErr error
	}{
		{"1.0.0", nil},
		{"1.9.3", nil},
		{"v1.1", nil},
		{"2.0.0", ErrUnsupportedVersion},
		{"0.9.0", ErrUnsupportedVersion},
		{"", ErrInvalidVersion},
		{"latest", ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			_, err := n.Check(tt.client)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("%s - Check(%q) unexpected error: %v", negotiatorTestPrefix, tt.client, err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("%s - Check(%q) error = %v, want %v", negotiatorTestPrefix, tt.client, err, tt.wantErr)
			}
		})
	}
}

func TestNegotiator_Agreed(t *testing.T) {
	n, err := NewNegotiator("1.2.0", "^1.0.0")
	if err != nil {
		t.Fatalf("%s - NewNegotiator failed: %v", negotiatorTestPrefix, err)
	}

	older, _ := n.Check("1.1.0")
	if got := n.Agreed(older).String(); got != "1.1.0" {
		t.Errorf("%s - Agreed = %s, want 1.1.0", negotiatorTestPrefix, got)
	}
	newer, _ := n.Check("1.5.0")
	if got := n.Agreed(newer).String(); got != "1.2.0" {
		t.Errorf("%s - Agreed = %s, want 1.2.0", negotiatorTestPrefix, got)
	}
}
