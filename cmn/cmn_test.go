package cmn_test

import (
	"errors"
	"net/http"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/aistore/zexec/cmn"
)

func TestCmn(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "cmn suite")
}

var _ = Describe("Config.FastV", func() {
	It("gates on the configured verbosity level for a module", func() {
		c := &cmn.Config{Verbosity: map[string]int{"coordinator": 3}}
		Expect(c.FastV(2, "coordinator")).To(BeTrue())
		Expect(c.FastV(3, "coordinator")).To(BeTrue())
		Expect(c.FastV(4, "coordinator")).To(BeFalse())
		Expect(c.FastV(1, "job")).To(BeFalse())
	})

	It("is safe on a nil Config or nil Verbosity map", func() {
		var c *cmn.Config
		Expect(c.FastV(0, "anything")).To(BeFalse())
		Expect((&cmn.Config{}).FastV(0, "anything")).To(BeFalse())
	})
})

var _ = Describe("GCO", func() {
	It("round-trips a Put config through Get", func() {
		cfg := cmn.DefaultConfig()
		cfg.ZerovmTimeout = 42
		cmn.GCO.Put(cfg)
		Expect(cmn.GCO.Get().ZerovmTimeout).To(Equal(cfg.ZerovmTimeout))
	})
})

var _ = Describe("ReqError", func() {
	It("maps every ErrKind to its HTTP status", func() {
		cases := map[cmn.ErrKind]int{
			cmn.ErrBadRequest:          http.StatusBadRequest,
			cmn.ErrNotFound:            http.StatusNotFound,
			cmn.ErrMethodNotAllowed:    http.StatusMethodNotAllowed,
			cmn.ErrRequestTimeout:      http.StatusRequestTimeout,
			cmn.ErrPayloadTooLarge:     http.StatusRequestEntityTooLarge,
			cmn.ErrUnprocessable:       http.StatusUnprocessableEntity,
			cmn.ErrClientDisconnect:    499,
			cmn.ErrInternal:           http.StatusInternalServerError,
			cmn.ErrServiceUnavailable: http.StatusServiceUnavailable,
			cmn.ErrInsufficientStorage: http.StatusInsufficientStorage,
		}
		for kind, status := range cases {
			err := cmn.NewReqError(kind, "boom")
			Expect(err.HTTPStatus()).To(Equal(status))
			Expect(err.Error()).To(Equal("boom"))
		}
	})

	It("Wrap preserves the underlying ReqError's Kind through AsReqError", func() {
		orig := cmn.NewReqError(cmn.ErrNotFound, "object missing")
		wrapped := cmn.Wrap(orig, "coordinator: resolving channel")
		got := cmn.AsReqError(wrapped)
		Expect(got.Kind).To(Equal(cmn.ErrNotFound))
	})

	It("AsReqError defaults unrecognized errors to ErrInternal", func() {
		got := cmn.AsReqError(errors.New("plain error"))
		Expect(got.Kind).To(Equal(cmn.ErrInternal))
		Expect(got.HTTPStatus()).To(Equal(http.StatusInternalServerError))
	})

	It("Wrap returns nil for a nil error", func() {
		Expect(cmn.Wrap(nil, "whatever")).To(BeNil())
	})
})
