package api

import (
	"fmt"
	"strings"

	"buildwatch/internal/domain"
)

const (
	maxUsernameLen = 128
	maxJobNameLen  = 256
	maxSubjectLen  = 512
)

func validateTrack(req TrackRequest) error {
	if err := validateUsername(req.Username); err != nil {
		return err
	}

	switch domain.ListType(req.Type) {
	case domain.ListTriggered, domain.ListInquired:
	default:
		return fmt.Errorf("type must be %q or %q", domain.ListTriggered, domain.ListInquired)
	}

	if err := validateJobName(req.JobName); err != nil {
		return err
	}

	if req.BuildNumber != "" {
		if err := validateBuildNumber(req.BuildNumber); err != nil {
			return err
		}
	}

	if len(req.Subject) > maxSubjectLen {
		return fmt.Errorf("subject exceeds %d characters", maxSubjectLen)
	}

	return nil
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) > maxUsernameLen {
		return fmt.Errorf("username exceeds %d characters", maxUsernameLen)
	}
	if strings.ContainsAny(username, " \t\n") {
		return fmt.Errorf("username must not contain whitespace")
	}
	return nil
}

func validateJobName(name string) error {
	if name == "" {
		return fmt.Errorf("job_name is required")
	}
	if len(name) > maxJobNameLen {
		return fmt.Errorf("job_name exceeds %d characters", maxJobNameLen)
	}
	// Job names end up in CI URL paths.
	if strings.ContainsAny(name, "/\\?#%") {
		return fmt.Errorf("job_name contains invalid characters")
	}
	return nil
}

func validateBuildNumber(build string) error {
	if build == "" {
		return fmt.Errorf("build_number is required")
	}
	for _, c := range build {
		if c < '0' || c > '9' {
			return fmt.Errorf("build_number must be numeric")
		}
	}
	return nil
}
