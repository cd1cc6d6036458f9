package errs_test

import (
	"fmt"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"attendly/internal/errs"
	"attendly/internal/errs/errstest"
)

func TestErrs(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Errs Suite")
}

var _ = Describe("Status", func() {
	Specify("validation errors map to 400 with their message", func() {
		code, msg := errs.Status(errs.ErrUsersRequired)
		Expect(code).To(Equal(http.StatusBadRequest))
		Expect(msg).To(Equal("Users list is required"))
	})

	Specify("wrapped errors keep their kind", func() {
		err := fmt.Errorf("insert user: %w", errs.ErrUserExists)
		code, msg := errs.Status(err)
		Expect(code).To(Equal(http.StatusConflict))
		Expect(msg).To(Equal("User already exists (email or regNo)"))
		Expect(err).To(errstest.MatchDomainError(errs.ErrUserExists))
		Expect(err).To(errstest.MatchDomainError(errs.ErrConflict))
	})

	Specify("auth kinds map to 401 and 403", func() {
		code, _ := errs.Status(errs.ErrInvalidToken)
		Expect(code).To(Equal(http.StatusUnauthorized))
		code, _ = errs.Status(errs.ErrForbiddenRole)
		Expect(code).To(Equal(http.StatusForbidden))
	})

	Specify("ad-hoc messages are preserved", func() {
		code, msg := errs.Status(errs.Invalid("Key: 'email' failed"))
		Expect(code).To(Equal(http.StatusBadRequest))
		Expect(msg).To(Equal("Key: 'email' failed"))
	})

	Specify("unclassified errors hide their detail", func() {
		code, msg := errs.Status(fmt.Errorf("pq: connection reset"))
		Expect(code).To(Equal(http.StatusInternalServerError))
		Expect(msg).To(Equal("Internal server error"))
	})

	Specify("rate limiting maps to 429", func() {
		code, msg := errs.Status(errs.ErrRateLimited)
		Expect(code).To(Equal(http.StatusTooManyRequests))
		Expect(msg).To(Equal("rate limit"))
	})

	Specify("bare kinds get a generic message for their status", func() {
		code, msg := errs.Status(fmt.Errorf("find user: %w", errs.ErrNotFound))
		Expect(code).To(Equal(http.StatusNotFound))
		Expect(msg).To(Equal("Resource not found"))
	})
})
