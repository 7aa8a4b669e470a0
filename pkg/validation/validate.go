package validation

import (
	"errors"
	"fmt"
	"strings"

	"parley/pkg/models"
)

type Rules struct {
	// MaxBodyLen caps message body length; zero disables the check.
	MaxBodyLen int
}

var rules Rules

func SetRules(r Rules) { rules = r }

// ValidateMessage checks creation/update payload invariants.
func ValidateMessage(m models.Message) error {
	var errs []string
	if strings.TrimSpace(m.Body) == "" {
		errs = append(errs, "body is required")
	}
	if m.Receiver == "" {
		errs = append(errs, "receiver is required")
	}
	if rules.MaxBodyLen > 0 && len(m.Body) > rules.MaxBodyLen {
		errs = append(errs, fmt.Sprintf("body exceeds max length %d", rules.MaxBodyLen))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateConversation checks conversation creation payload invariants.
func ValidateConversation(participants []string) error {
	if len(participants) == 0 {
		return errors.New("participants are required to create a conversation")
	}
	for _, p := range participants {
		if strings.TrimSpace(p) == "" {
			return errors.New("participant ids must be non-empty")
		}
	}
	return nil
}

// ValidateCredentials checks registration payload invariants.
func ValidateCredentials(username, password string) error {
	var errs []string
	if strings.TrimSpace(username) == "" {
		errs = append(errs, "username is required")
	}
	if len(password) < 8 {
		errs = append(errs, "password must be at least 8 characters")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
