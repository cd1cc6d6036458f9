package cloudinary

import (
	"context"
	"crypto/sha1"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"attendly/internal/errs"
	"attendly/internal/errs/errstest"
)

func TestCloudinary(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Cloudinary Suite")
}

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		client *Client
		form   map[string]string
		status int
	)

	BeforeEach(func() {
		status = http.StatusOK
		form = map[string]string{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/demo/image/upload"))
			Expect(r.ParseMultipartForm(1 << 20)).To(Succeed())
			for k, v := range r.MultipartForm.Value {
				form[k] = v[0]
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"public_id":"faces/x","secure_url":"https://res/x.jpg"}`))
		}))
		client = New("demo", "key", "secret", "faces")
		client.APIBase = server.URL
		client.now = func() time.Time { return time.Unix(1700000000, 0) }
	})

	AfterEach(func() { server.Close() })

	Specify("signs the folder and timestamp", func() {
		res, err := client.UploadDataURL(context.Background(), "data:image/png;base64,AAAA")
		Expect(err).To(BeNil())
		Expect(res.SecureURL).To(Equal("https://res/x.jpg"))

		want := fmt.Sprintf("%x", sha1.Sum([]byte("folder=faces&timestamp=1700000000secret")))
		Expect(form).To(HaveKeyWithValue("signature", want))
		Expect(form).To(HaveKeyWithValue("api_key", "key"))
		Expect(form).To(HaveKeyWithValue("file", "data:image/png;base64,AAAA"))
	})

	Specify("upload failures are reported as upstream errors", func() {
		status = http.StatusBadRequest
		_, err := client.UploadBytes(context.Background(), []byte{1, 2, 3}, "face.jpg")
		Expect(err).To(errstest.MatchDomainError(errs.ErrImageUpload))
	})

	Specify("recognises data urls", func() {
		Expect(IsDataURL("data:image/jpeg;base64,xx")).To(BeTrue())
		Expect(IsDataURL("https://img")).To(BeFalse())
	})
})
