package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func TestDecode(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "piggy")

	tests := []struct {
		name    string
		input   string
		want    sample
		wantErr string
	}{
		{name: "env expansion", input: "name: ${SAMPLE_NAME}\ncount: 2", want: sample{Name: "piggy", Count: 2}},
		{name: "keeps defaults", input: "count: 5", want: sample{Name: "default", Count: 5}},
		{name: "validation", input: "count: -1", wantErr: "validation failed"},
		{name: "bad yaml", input: "count: [", wantErr: "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sample{Name: "default"}
			err := Decode([]byte(tt.input), &got)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	ok := sample{Count: 1}
	if err := LoadOptional(missing, &ok); err != nil {
		t.Fatalf("missing file with valid defaults: %v", err)
	}
	bad := sample{Count: -3}
	if err := LoadOptional(missing, &bad); err == nil {
		t.Error("defaults should still be validated")
	}
	if err := Load(missing, &ok); err == nil {
		t.Error("Load should fail on a missing file")
	}
}
