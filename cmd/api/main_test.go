package main

import (
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "API Command Suite")
}

var _ = Describe("serve", func() {
	Specify("returns the listener error instead of exiting", func() {
		taken, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		defer taken.Close()

		srv := &http.Server{Addr: taken.Addr().String(), Handler: http.NotFoundHandler()}
		done := make(chan error, 1)
		go func() { done <- serve(srv, make(chan os.Signal), time.Second, zap.NewNop()) }()

		var got error
		Eventually(done, 2*time.Second).Should(Receive(&got))
		Expect(got).To(HaveOccurred())
	})

	Specify("shuts down cleanly on a signal", func() {
		srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
		stop := make(chan os.Signal, 1)
		done := make(chan error, 1)
		go func() { done <- serve(srv, stop, time.Second, zap.NewNop()) }()

		time.Sleep(50 * time.Millisecond)
		stop <- syscall.SIGTERM
		Eventually(done, 2*time.Second).Should(Receive(BeNil()))
	})
})
