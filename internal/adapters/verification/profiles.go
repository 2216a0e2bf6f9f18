package verification

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/byteom/scanstation/internal/core/domain"
)

var errMissingField = errors.New("missing required field")

// profile describes one scanner call site.
type profile struct {
	path   string
	field  string
	decode func(data json.RawMessage) (domain.ScanOutcome, error)
}

var profiles = map[domain.Profile]profile{
	domain.ProfileVolunteer: {
		path:   "/api/volunteer/scan",
		field:  "qr_token",
		decode: decodeVolunteer,
	},
	domain.ProfileStall: {
		path:   "/api/stall/scan",
		field:  "stall_token",
		decode: decodeStall,
	},
}

type volunteerData struct {
	StudentName    string `json:"student_name"`
	RegistrationNo string `json:"registration_no"`
	Action         string `json:"action"` // ENTRY or EXIT
	ScanCount      int    `json:"scan_count"`
}

func decodeVolunteer(data json.RawMessage) (domain.ScanOutcome, error) {
	var d volunteerData
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.ScanOutcome{}, err
	}
	if d.StudentName == "" {
		return domain.ScanOutcome{}, fmt.Errorf("%w: student_name", errMissingField)
	}
	action := strings.ToUpper(d.Action)
	if action != "ENTRY" && action != "EXIT" {
		return domain.ScanOutcome{}, fmt.Errorf("%w: action", errMissingField)
	}
	return domain.ScanOutcome{
		Kind:        domain.OutcomeSuccess,
		SubjectName: d.StudentName,
		SubjectRef:  d.RegistrationNo,
		Direction:   action,
		Counter:     d.ScanCount,
	}, nil
}

type stallData struct {
	StallName  string `json:"stall_name"`
	StallID    string `json:"stall_id"`
	VisitType  string `json:"visit_type"`
	VisitCount int    `json:"visit_count"`
}

func decodeStall(data json.RawMessage) (domain.ScanOutcome, error) {
	var d stallData
	if err := json.Unmarshal(data, &d); err != nil {
		return domain.ScanOutcome{}, err
	}
	if d.StallName == "" {
		return domain.ScanOutcome{}, fmt.Errorf("%w: stall_name", errMissingField)
	}
	if d.VisitType == "" {
		return domain.ScanOutcome{}, fmt.Errorf("%w: visit_type", errMissingField)
	}
	return domain.ScanOutcome{
		Kind:        domain.OutcomeSuccess,
		SubjectName: d.StallName,
		SubjectRef:  d.StallID,
		Direction:   d.VisitType,
		Counter:     d.VisitCount,
	}, nil
}
