package dialog_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/edwarddev/tutorcore/common/id"
)

func TestDialog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Dialog Engine Suite")
}

var _ = BeforeSuite(func() {
	Expect(id.Init(1)).To(Succeed())
})
