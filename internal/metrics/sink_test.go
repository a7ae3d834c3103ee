package metrics

import (
	"errors"
	"fmt"
	"testing"

	"buildwatch/internal/domain"
)

func TestClassifyResult(t *testing.T) {
	tests := []struct {
		name   string
		status domain.BuildStatus
		err    error
		want   string
	}{
		// Definitive statuses
		{"running", domain.StatusRunning, nil, ResultClassRunning},
		{"success", domain.StatusSuccess, nil, ResultClassSuccess},
		{"failure", domain.StatusFailure, nil, ResultClassFailure},
		{"aborted", domain.StatusAborted, nil, ResultClassAborted},

		// Indeterminate answers
		{"unknown", domain.StatusUnknown, nil, ResultClassUnknown},
		{"empty status", domain.BuildStatus(""), nil, ResultClassUnknown},

		// Missing builds
		{"build not found", domain.StatusUnknown, errors.New("build not found"), ResultClassNotFound},
		{"wrapped not found", domain.StatusUnknown, fmt.Errorf("check nightly-build #42: %w", errors.New("build not found")), ResultClassNotFound},

		// Other errors
		{"generic error", domain.StatusUnknown, errors.New("something broke"), ResultClassUnknown},
		{"empty error", domain.StatusUnknown, errors.New(""), ResultClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyResult(tt.status, tt.err)
			if got != tt.want {
				t.Errorf("ClassifyResult(%q, %v) = %q, want %q", tt.status, tt.err, got, tt.want)
			}
		})
	}
}
