package errstest

import (
	"errors"
	"fmt"

	"github.com/onsi/gomega/format"
	"github.com/onsi/gomega/types"
)

type matchDomainErrorMatcher struct {
	Expected error
}

// MatchDomainError succeeds when the actual error is, or wraps, expected.
func MatchDomainError(expected error) types.GomegaMatcher {
	return &matchDomainErrorMatcher{Expected: expected}
}

func (m *matchDomainErrorMatcher) Match(actual interface{}) (bool, error) {
	err, ok := actual.(error)
	if !ok {
		return false, fmt.Errorf("MatchDomainError matcher requires an error, got:\n%s", format.Object(actual, 1))
	}
	return errors.Is(err, m.Expected), nil
}

func (m *matchDomainErrorMatcher) FailureMessage(actual interface{}) string {
	return format.Message(actual, "to be", m.Expected.Error())
}

func (m *matchDomainErrorMatcher) NegatedFailureMessage(actual interface{}) string {
	return format.Message(actual, "not to be", m.Expected.Error())
}
