package users_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"attendly/internal/auth"
	"attendly/internal/errs"
	"attendly/internal/errs/errstest"
	"attendly/internal/model"
	"attendly/internal/users"
)

func TestUsers(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Users Suite")
}

func strp(s string) *string { return &s }

var _ = Describe("Service", func() {
	var (
		ctx    context.Context
		repo   *memRepo
		mail   *recordingNotifier
		svc    *users.Service
		hasher auth.Hasher
		admin  *model.User
	)

	BeforeEach(func() {
		ctx = context.Background()
		repo = newMemRepo()
		mail = &recordingNotifier{}
		hasher = auth.Hasher{Cost: 4}
		signer := auth.Signer{Key: "k", Issuer: "attendly", TTL: time.Hour}
		svc = users.NewService(repo, signer, hasher, mail, nil, users.Options{ClientURL: "http://app.test/"})

		hash, err := hasher.Hash("admin-pass")
		Expect(err).To(BeNil())
		admin = repo.seed(model.User{Email: "admin@x.edu", Username: "admin", RegNo: "A001", Role: model.RoleAdmin, PasswordHash: hash, IsValid: true})
	})

	Describe("Register", func() {
		BeforeEach(func() {
			repo.seed(model.User{Email: "s1@x.edu", Username: "s1", RegNo: "S001", Role: model.RoleStudent})
		})

		Specify("unknown regNo is not authorized", func() {
			_, err := svc.Register(ctx, users.RegisterInput{RegNo: "nope", Password: "password1"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrRegNoNotAuthorized))
		})

		Specify("missing fields", func() {
			_, err := svc.Register(ctx, users.RegisterInput{RegNo: "S001"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrRequiredRegistration))
		})

		Specify("short password", func() {
			_, err := svc.Register(ctx, users.RegisterInput{RegNo: "s001", Password: "short"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrPasswordTooShort))
		})

		Specify("activates the account, issues a session and mails an otp", func() {
			sess, err := svc.Register(ctx, users.RegisterInput{RegNo: " s001 ", Password: "password1", Username: "Sam"})
			Expect(err).To(BeNil())
			Expect(sess.Token).NotTo(BeEmpty())
			Expect(sess.User.IsValid).To(BeTrue())
			Expect(sess.User.Username).To(Equal("Sam"))

			stored, _ := repo.FindByRegNo(ctx, "S001")
			Expect(stored.SessionID).NotTo(BeEmpty())
			Expect(stored.OTPHash).NotTo(BeEmpty())
			Expect(mail.last("otp").to).To(Equal("s1@x.edu"))

			_, err = svc.Register(ctx, users.RegisterInput{RegNo: "S001", Password: "password2"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrAlreadyRegistered))
		})

		Specify("otp verification", func() {
			_, err := svc.Register(ctx, users.RegisterInput{RegNo: "S001", Password: "password1"})
			Expect(err).To(BeNil())

			Expect(svc.VerifyOTP(ctx, "s1@x.edu", "not-it")).To(errstest.MatchDomainError(errs.ErrInvalidOTP))
			Expect(svc.VerifyOTP(ctx, "S1@X.EDU", mail.last("otp").body)).To(Succeed())

			stored, _ := repo.FindByRegNo(ctx, "S001")
			Expect(stored.EmailVerified).To(BeTrue())
			Expect(stored.OTPHash).To(BeEmpty())
			Expect(svc.VerifyOTP(ctx, "s1@x.edu", mail.last("otp").body)).To(errstest.MatchDomainError(errs.ErrInvalidOTP))
		})

		Specify("resend replaces the otp", func() {
			Expect(svc.ResendOTP(ctx, "nobody@x.edu")).To(errstest.MatchDomainError(errs.ErrUserNotFound))
			Expect(svc.ResendOTP(ctx, "s1@x.edu")).To(Succeed())
			first := mail.last("otp").body
			Expect(svc.ResendOTP(ctx, "s1@x.edu")).To(Succeed())
			second := mail.last("otp").body
			if first != second {
				Expect(svc.VerifyOTP(ctx, "s1@x.edu", first)).To(errstest.MatchDomainError(errs.ErrInvalidOTP))
			}
			Expect(svc.VerifyOTP(ctx, "s1@x.edu", second)).To(Succeed())
		})
	})

	Describe("Login", func() {
		Specify("missing credentials", func() {
			_, err := svc.Login(ctx, users.LoginInput{Email: "admin@x.edu"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrRequiredCredentials))
		})

		Specify("bad password changes nothing", func() {
			before := repo.get(admin.ID).SessionID
			_, err := svc.Login(ctx, users.LoginInput{Email: "admin@x.edu", Password: "wrong-pass"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrInvalidCredentials))
			Expect(repo.get(admin.ID).SessionID).To(Equal(before))
		})

		Specify("user without a password cannot log in", func() {
			repo.seed(model.User{Email: "new@x.edu", RegNo: "S9", Role: model.RoleStudent})
			_, err := svc.Login(ctx, users.LoginInput{RegNo: "s9", Password: "anything1"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrInvalidCredentials))
		})

		Specify("each login replaces the session", func() {
			first, err := svc.Login(ctx, users.LoginInput{Email: "ADMIN@x.edu", Password: "admin-pass"})
			Expect(err).To(BeNil())
			firstSession := repo.get(admin.ID).SessionID

			_, err = svc.Login(ctx, users.LoginInput{RegNo: "a001", Password: "admin-pass"})
			Expect(err).To(BeNil())
			Expect(repo.get(admin.ID).SessionID).NotTo(Equal(firstSession))
			Expect(first.Token).NotTo(BeEmpty())

			Expect(svc.Logout(ctx, admin.ID)).To(Succeed())
			Expect(repo.get(admin.ID).SessionID).To(BeEmpty())
		})
	})

	Describe("Password reset", func() {
		Specify("unknown email is silently accepted", func() {
			Expect(svc.ForgotPassword(ctx, "ghost@x.edu")).To(Succeed())
			Expect(mail.last("reset").to).To(BeEmpty())
		})

		Specify("token round trip", func() {
			_, err := svc.Login(ctx, users.LoginInput{Email: "admin@x.edu", Password: "admin-pass"})
			Expect(err).To(BeNil())

			Expect(svc.ForgotPassword(ctx, "admin@x.edu")).To(Succeed())
			link := mail.last("reset").body
			Expect(link).To(HavePrefix("http://app.test/reset-password/"))
			token := strings.TrimPrefix(link, "http://app.test/reset-password/")

			Expect(svc.ResetPassword(ctx, token, "admin-pass")).To(errstest.MatchDomainError(errs.ErrSamePassword))
			Expect(svc.ResetPassword(ctx, "bogus", "new-password")).To(errstest.MatchDomainError(errs.ErrInvalidResetToken))
			Expect(svc.ResetPassword(ctx, token, "new-password")).To(Succeed())

			stored := repo.get(admin.ID)
			Expect(stored.SessionID).To(BeEmpty())
			Expect(hasher.Check(stored.PasswordHash, "new-password")).To(BeTrue())
			Expect(svc.ResetPassword(ctx, token, "another-pass")).To(errstest.MatchDomainError(errs.ErrInvalidResetToken))
		})

		Specify("expired tokens are purged", func() {
			past := time.Now().Add(-time.Minute)
			u := repo.seed(model.User{Email: "p@x.edu", RegNo: "P1", Role: model.RoleStudent, ResetHash: "h", ResetExpiresAt: &past})
			n, err := svc.PurgeExpired(ctx)
			Expect(err).To(BeNil())
			Expect(n).To(BeEquivalentTo(1))
			Expect(repo.get(u.ID).ResetHash).To(BeEmpty())
		})
	})

	Describe("AddUsers", func() {
		var faculty, other *model.User

		BeforeEach(func() {
			faculty = repo.seed(model.User{Email: "f1@x.edu", Username: "f1", RegNo: "F001", Role: model.RoleFaculty})
			other = repo.seed(model.User{Email: "f2@x.edu", Username: "f2", RegNo: "F002", Role: model.RoleFaculty})
		})

		Specify("empty batch", func() {
			_, err := svc.AddUsers(ctx, admin, users.AddUsersInput{})
			Expect(err).To(errstest.MatchDomainError(errs.ErrUsersRequired))
		})

		Specify("admin proctorId must be a faculty", func() {
			_, err := svc.AddUsers(ctx, admin, users.AddUsersInput{
				ProctorID: admin.ID,
				Users:     []users.NewUser{{Email: "a@x.edu", Username: "a", RegNo: "S1", Role: "Student"}},
			})
			Expect(err).To(errstest.MatchDomainError(errs.ErrInvalidProctorID))
		})

		Specify("faculty cannot pass proctorId", func() {
			_, err := svc.AddUsers(ctx, faculty, users.AddUsersInput{
				ProctorID: faculty.ID,
				Users:     []users.NewUser{{Email: "a@x.edu", Username: "a", RegNo: "S1", Role: "Student"}},
			})
			Expect(err).To(errstest.MatchDomainError(errs.ErrFacultyProctorID))
		})

		Specify("every row is either created or skipped", func() {
			repo.seed(model.User{Email: "mine@x.edu", RegNo: "S10", Role: model.RoleStudent, ProctorID: faculty.ID})
			repo.seed(model.User{Email: "theirs@x.edu", RegNo: "S11", Role: model.RoleStudent, ProctorID: other.ID})
			free := repo.seed(model.User{Email: "free@x.edu", RegNo: "S12", Role: model.RoleStudent})

			res, err := svc.AddUsers(ctx, faculty, users.AddUsersInput{Users: []users.NewUser{
				{Email: "new@x.edu", Username: "new", RegNo: "s13", Role: "student"},
				{Email: "", Username: "x", RegNo: "S14", Role: "Student"},
				{Email: "fac@x.edu", Username: "fac", RegNo: "F9", Role: "Faculty"},
				{Email: "mine@x.edu", Username: "m", RegNo: "S10", Role: "Student"},
				{Email: "theirs@x.edu", Username: "t", RegNo: "S11", Role: "Student"},
				{Email: "free@x.edu", Username: "fr", RegNo: "S12", Role: "Student"},
				{Email: "f2@x.edu", Username: "f2", RegNo: "X1", Role: "Student"},
			}})
			Expect(err).To(BeNil())
			Expect(res.CreatedCount + res.SkippedCount).To(Equal(7))
			Expect(res.CreatedCount).To(Equal(2))

			reasons := map[string]string{}
			for _, sk := range res.SkippedUsers {
				reasons[sk.RegNo] = sk.Reason
			}
			Expect(reasons).To(Equal(map[string]string{
				"S14": users.ReasonMissingFields,
				"F9":  users.ReasonFacultyOnlyAdds,
				"S10": users.ReasonAssignedToCaller,
				"S11": users.ReasonAssignedElsewhere,
				"X1":  users.ReasonAlreadyExists,
			}))

			Expect(res.CreatedUsers[0].RegNo).To(Equal("S13"))
			Expect(*res.CreatedUsers[0].Proctor).To(Equal(faculty.ID))
			Expect(res.CreatedUsers[1].Reassigned).To(BeTrue())
			Expect(repo.get(free.ID).ProctorID).To(Equal(faculty.ID))

			created, _ := repo.FindByRegNo(ctx, "S13")
			Expect(created.IsValid).To(BeFalse())
			Expect(created.HasPassword()).To(BeFalse())
		})

		Specify("admin rows respect role rules", func() {
			res, err := svc.AddUsers(ctx, admin, users.AddUsersInput{
				ProctorID: faculty.ID,
				Users: []users.NewUser{
					{Email: "s@x.edu", Username: "s", RegNo: "S20", Role: "Student"},
					{Email: "f@x.edu", Username: "f", RegNo: "F20", Role: "faculty"},
					{Email: "ad@x.edu", Username: "ad", RegNo: "A20", Role: "Admin"},
					{Email: "s@x.edu", Username: "dup", RegNo: "S21", Role: "Student"},
				},
			})
			Expect(err).To(BeNil())
			Expect(res.CreatedCount).To(Equal(2))
			Expect(res.SkippedUsers).To(ConsistOf(
				users.SkippedUser{Email: "ad@x.edu", RegNo: "A20", Reason: users.ReasonInvalidRole},
				users.SkippedUser{Email: "s@x.edu", RegNo: "S21", Reason: users.ReasonAlreadyExists},
			))
			s, _ := repo.FindByRegNo(ctx, "S20")
			Expect(s.ProctorID).To(Equal(faculty.ID))
			f, _ := repo.FindByRegNo(ctx, "F20")
			Expect(f.ProctorID).To(BeEmpty())
		})
	})

	Describe("AddUsers races and proctor links", func() {
		var faculty *model.User

		BeforeEach(func() {
			faculty = repo.seed(model.User{Email: "f1@x.edu", Username: "f1", RegNo: "F001", Role: model.RoleFaculty})
		})

		Specify("concurrent batches with the same regNo create one user", func() {
			results := make([]*users.AddUsersResult, 2)
			var wg sync.WaitGroup
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := svc.AddUsers(ctx, admin, users.AddUsersInput{Users: []users.NewUser{
						{Email: fmt.Sprintf("dup%d@x.edu", i), Username: "dup", RegNo: "S30", Role: "Student"},
					}})
					Expect(err).To(BeNil())
					results[i] = res
				}(i)
			}
			wg.Wait()

			Expect(results[0].CreatedCount + results[1].CreatedCount).To(Equal(1))
			skipped := append(results[0].SkippedUsers, results[1].SkippedUsers...)
			Expect(skipped).To(HaveLen(1))
			Expect(skipped[0].Reason).To(Equal(users.ReasonAlreadyExists))

			all, _ := repo.List(ctx)
			n := 0
			for _, u := range all {
				if u.RegNo == "S30" {
					n++
				}
			}
			Expect(n).To(Equal(1))
		})

		Specify("a row matching two different users is skipped and claims neither", func() {
			a := repo.seed(model.User{Email: "a@x.edu", RegNo: "S50", Role: model.RoleStudent})
			b := repo.seed(model.User{Email: "b@x.edu", RegNo: "S51", Role: model.RoleStudent})

			res, err := svc.AddUsers(ctx, faculty, users.AddUsersInput{Users: []users.NewUser{
				{Email: "a@x.edu", Username: "ab", RegNo: "S51", Role: "Student"},
			}})
			Expect(err).To(BeNil())
			Expect(res.CreatedCount).To(Equal(0))
			Expect(res.SkippedUsers).To(ConsistOf(
				users.SkippedUser{Email: "a@x.edu", RegNo: "S51", Reason: users.ReasonAlreadyExists},
			))
			Expect(repo.get(a.ID).ProctorID).To(BeEmpty())
			Expect(repo.get(b.ID).ProctorID).To(BeEmpty())
		})

		Specify("proctor assignment follows the faculty role", func() {
			res, err := svc.AddUsers(ctx, admin, users.AddUsersInput{
				ProctorID: faculty.ID,
				Users:     []users.NewUser{{Email: "s40@x.edu", Username: "s40", RegNo: "S40", Role: "Student"}},
			})
			Expect(err).To(BeNil())
			Expect(res.CreatedCount).To(Equal(1))

			list, err := svc.List(ctx, faculty)
			Expect(err).To(BeNil())
			Expect(list).To(HaveLen(1))
			Expect(list[0].RegNo).To(Equal("S40"))

			_, err = svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: faculty.ID, Role: strp("Student")})
			Expect(err).To(BeNil())
			Expect(repo.get(faculty.ID).Role).To(Equal(model.RoleStudent))

			list, err = svc.List(ctx, faculty)
			Expect(err).To(BeNil())
			Expect(list).To(BeEmpty())

			s40, err := svc.Get(ctx, admin, res.CreatedUsers[0].ID)
			Expect(err).To(BeNil())
			Expect(s40.ProctorID).To(BeEmpty())
			Expect(s40.Proctor).To(BeNil())
		})
	})

	Describe("Writes interleaved with an admin update", func() {
		var (
			faculty, other, student *model.User
			racing                  *interleavingRepo
			raced                   *users.Service
		)

		BeforeEach(func() {
			faculty = repo.seed(model.User{Email: "f1@x.edu", Username: "f1", RegNo: "F001", Role: model.RoleFaculty})
			other = repo.seed(model.User{Email: "f2@x.edu", Username: "f2", RegNo: "F002", Role: model.RoleFaculty})
			hash, _ := hasher.Hash("password1")
			student = repo.seed(model.User{
				Email: "s1@x.edu", Username: "s1", RegNo: "S001", Role: model.RoleStudent,
				PasswordHash: hash, IsValid: true, ProctorID: faculty.ID,
			})
			racing = &interleavingRepo{memRepo: repo}
			signer := auth.Signer{Key: "k", Issuer: "attendly", TTL: time.Hour}
			raced = users.NewService(racing, signer, hasher, mail, nil, users.Options{ClientURL: "http://app.test/"})
		})

		promote := func() {
			_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, Role: strp("Faculty")})
			Expect(err).To(BeNil())
		}

		Specify("login keeps a role change made after its lookup", func() {
			racing.after = promote
			_, err := raced.Login(ctx, users.LoginInput{Email: "s1@x.edu", Password: "password1"})
			Expect(err).To(BeNil())

			stored := repo.get(student.ID)
			Expect(stored.Role).To(Equal(model.RoleFaculty))
			Expect(stored.ProctorID).To(BeEmpty())
			Expect(stored.SessionID).NotTo(BeEmpty())
		})

		Specify("forgot password keeps a role change made after its lookup", func() {
			racing.after = promote
			Expect(raced.ForgotPassword(ctx, "s1@x.edu")).To(Succeed())

			stored := repo.get(student.ID)
			Expect(stored.Role).To(Equal(model.RoleFaculty))
			Expect(stored.ResetHash).NotTo(BeEmpty())
		})

		Specify("profile edits keep a proctor change made after their lookup", func() {
			racing.after = func() {
				_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{
					UserID:  student.ID,
					Proctor: users.Optional{Set: true, Value: other.ID},
				})
				Expect(err).To(BeNil())
			}
			_, changed, err := raced.UpdateSelf(ctx, student.ID, users.SelfUpdateInput{Username: strp("Sam")})
			Expect(err).To(BeNil())
			Expect(changed).To(BeTrue())

			stored := repo.get(student.ID)
			Expect(stored.Username).To(Equal("Sam"))
			Expect(stored.ProctorID).To(Equal(other.ID))
		})
	})

	Describe("AdminUpdate", func() {
		var faculty, other, student *model.User

		BeforeEach(func() {
			faculty = repo.seed(model.User{Email: "f1@x.edu", RegNo: "F001", Role: model.RoleFaculty})
			other = repo.seed(model.User{Email: "f2@x.edu", RegNo: "F002", Role: model.RoleFaculty})
			student = repo.seed(model.User{Email: "s1@x.edu", RegNo: "S001", Role: model.RoleStudent, ProctorID: faculty.ID})
		})

		Specify("userId is required", func() {
			_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{})
			Expect(err).To(errstest.MatchDomainError(errs.ErrUserIDRequired))
		})

		Specify("unknown user", func() {
			_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: "missing"})
			Expect(err).To(errstest.MatchDomainError(errs.ErrUserNotFound))
		})

		Specify("reassigning moves the student between proctors", func() {
			u, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, Proctor: users.Optional{Set: true, Value: other.ID}})
			Expect(err).To(BeNil())
			Expect(u.Proctor.ID).To(Equal(other.ID))

			mine, _ := svc.List(ctx, faculty)
			Expect(mine).To(BeEmpty())
			theirs, _ := svc.List(ctx, other)
			Expect(theirs).To(HaveLen(1))
		})

		Specify("null proctor unassigns", func() {
			u, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, Proctor: users.Optional{Set: true}})
			Expect(err).To(BeNil())
			Expect(u.Proctor).To(BeNil())
			Expect(repo.get(student.ID).ProctorID).To(BeEmpty())
		})

		Specify("invalid proctor rolls back every change", func() {
			_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{
				UserID:   student.ID,
				Email:    strp("changed@x.edu"),
				Username: strp("changed"),
				Proctor:  users.Optional{Set: true, Value: admin.ID},
			})
			Expect(err).To(errstest.MatchDomainError(errs.ErrInvalidProctor))
			stored := repo.get(student.ID)
			Expect(stored.Email).To(Equal("s1@x.edu"))
			Expect(stored.ProctorID).To(Equal(faculty.ID))
		})

		Specify("a user cannot proctor itself", func() {
			_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, Proctor: users.Optional{Set: true, Value: student.ID}})
			Expect(err).To(errstest.MatchDomainError(errs.ErrInvalidProctor))
		})

		Specify("demoting a faculty releases its students", func() {
			u, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: faculty.ID, Role: strp("student")})
			Expect(err).To(BeNil())
			Expect(u.Role).To(Equal(model.RoleStudent))
			Expect(repo.get(student.ID).ProctorID).To(BeEmpty())
		})

		Specify("promoting a student clears its proctor and ignores a proctor key", func() {
			u, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{
				UserID:  student.ID,
				Role:    strp("Faculty"),
				Proctor: users.Optional{Set: true, Value: other.ID},
			})
			Expect(err).To(BeNil())
			Expect(u.Proctor).To(BeNil())
			Expect(u.AssignedStudents).To(BeEmpty())
			mine, _ := svc.List(ctx, faculty)
			Expect(mine).To(BeEmpty())
		})

		Specify("email conflicts", func() {
			_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, Email: strp("F2@x.edu")})
			Expect(err).To(errstest.MatchDomainError(errs.ErrEmailInUse))
			_, err = svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, RegNo: strp("f002")})
			Expect(err).To(errstest.MatchDomainError(errs.ErrRegNoInUse))
		})

		Specify("invalid role", func() {
			_, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, Role: strp("janitor")})
			Expect(err).To(MatchError(ContainSubstring("Invalid role")))
		})

		Specify("password activates the account", func() {
			u, err := svc.AdminUpdate(ctx, users.AdminUpdateInput{UserID: student.ID, Password: strp("password1")})
			Expect(err).To(BeNil())
			Expect(u.IsValid).To(BeTrue())
		})
	})

	Describe("UpdateSelf", func() {
		var student *model.User

		BeforeEach(func() {
			hash, _ := hasher.Hash("password1")
			student = repo.seed(model.User{Email: "s1@x.edu", Username: "s1", RegNo: "S001", Role: model.RoleStudent, PasswordHash: hash})
			repo.seed(model.User{Email: "taken@x.edu", RegNo: "S002", Role: model.RoleStudent})
		})

		Specify("regNo is immutable", func() {
			_, _, err := svc.UpdateSelf(ctx, student.ID, users.SelfUpdateInput{RegNo: strp("S999")})
			Expect(err).To(errstest.MatchDomainError(errs.ErrRegNoImmutable))
		})

		Specify("unchanged values are not a change", func() {
			_, changed, err := svc.UpdateSelf(ctx, student.ID, users.SelfUpdateInput{
				RegNo:    strp("s001"),
				Username: strp("s1"),
				Email:    strp("S1@x.edu"),
				Password: strp("password1"),
			})
			Expect(err).To(BeNil())
			Expect(changed).To(BeFalse())
		})

		Specify("email conflict", func() {
			_, _, err := svc.UpdateSelf(ctx, student.ID, users.SelfUpdateInput{Email: strp("taken@x.edu")})
			Expect(err).To(errstest.MatchDomainError(errs.ErrEmailInUse))
		})

		Specify("email change requires verification again", func() {
			u, changed, err := svc.UpdateSelf(ctx, student.ID, users.SelfUpdateInput{Email: strp("fresh@x.edu"), Username: strp("Sam")})
			Expect(err).To(BeNil())
			Expect(changed).To(BeTrue())
			Expect(u.EmailVerified).To(BeFalse())
			Expect(u.Username).To(Equal("Sam"))
			Expect(mail.last("otp").to).To(Equal("fresh@x.edu"))
		})

		Specify("short password", func() {
			_, _, err := svc.UpdateSelf(ctx, student.ID, users.SelfUpdateInput{Password: strp("short")})
			Expect(err).To(errstest.MatchDomainError(errs.ErrPasswordTooShort))
		})
	})

	Describe("Reads and deletes", func() {
		var faculty, student, stranger *model.User

		BeforeEach(func() {
			faculty = repo.seed(model.User{Email: "f1@x.edu", RegNo: "F001", Role: model.RoleFaculty})
			student = repo.seed(model.User{Email: "s1@x.edu", RegNo: "S001", Role: model.RoleStudent, ProctorID: faculty.ID})
			stranger = repo.seed(model.User{Email: "s2@x.edu", RegNo: "S002", Role: model.RoleStudent})
		})

		Specify("faculty profile derives assigned students", func() {
			me, err := svc.Me(ctx, faculty.ID)
			Expect(err).To(BeNil())
			Expect(me.AssignedStudents).To(ConsistOf(student.Ref()))

			s, err := svc.Me(ctx, student.ID)
			Expect(err).To(BeNil())
			Expect(s.Proctor.ID).To(Equal(faculty.ID))
		})

		Specify("admin lists everyone with proctors populated", func() {
			list, err := svc.List(ctx, admin)
			Expect(err).To(BeNil())
			Expect(list).To(HaveLen(4))
			for _, u := range list {
				if u.ID == student.ID {
					Expect(u.Proctor.ID).To(Equal(faculty.ID))
				}
			}
		})

		Specify("faculty may read only its own students", func() {
			_, err := svc.Get(ctx, faculty, student.ID)
			Expect(err).To(BeNil())
			_, err = svc.Get(ctx, faculty, stranger.ID)
			Expect(err).To(errstest.MatchDomainError(errs.ErrForbiddenRole))
			_, err = svc.Get(ctx, admin, "missing")
			Expect(err).To(errstest.MatchDomainError(errs.ErrUserNotFound))
		})

		Specify("deleting a faculty unlinks its students", func() {
			Expect(svc.Delete(ctx, admin, faculty.ID)).To(Succeed())
			Expect(repo.get(student.ID).ProctorID).To(BeEmpty())
			_, err := repo.FindByID(ctx, faculty.ID)
			Expect(err).To(errstest.MatchDomainError(errs.ErrUserNotFound))
		})

		Specify("admins cannot delete themselves", func() {
			Expect(svc.Delete(ctx, admin, admin.ID)).To(errstest.MatchDomainError(errs.ErrCannotDeleteSelf))
		})

		Specify("faceprint enrollment", func() {
			has, err := svc.HasFaceprint(ctx, student.ID)
			Expect(err).To(BeNil())
			Expect(has).To(BeFalse())
			Expect(svc.SetFaceprint(ctx, student.ID, []float64{0.1, 0.2})).To(Succeed())
			has, _ = svc.HasFaceprint(ctx, student.ID)
			Expect(has).To(BeTrue())
		})
	})
})
