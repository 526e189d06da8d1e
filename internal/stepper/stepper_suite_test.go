package stepper

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestStepper(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Stepper Suite")
}
